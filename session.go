package sandchest

import (
	"context"
	"fmt"
	"net/http"
)

// Session 沙箱内的持久 shell 会话。
// 同一会话中的命令按提交顺序执行，工作目录与
// shell 变量在命令之间保留。
type Session struct {
	id      string
	sandbox *Sandbox
}

// ID 返回会话标识。
func (s *Session) ID() string {
	return s.id
}

// SandboxID 返回会话所属的沙箱 ID。
func (s *Session) SandboxID() string {
	return s.sandbox.id
}

func (s *Session) path(suffix string) string {
	return s.sandbox.path("/sessions/" + s.id + suffix)
}

type sessionExecBody struct {
	Cmd            string `json:"cmd"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Wait           bool   `json:"wait"`
}

// Exec 在会话中执行命令并阻塞到完成。
// 会话命令继承会话状态，工作目录和环境变量
// 通过 shell 语义调整，WithCwd 与 WithEnvs 在此不生效。
func (s *Session) Exec(ctx context.Context, cmd string, options ...ExecOption) (*ExecResult, error) {
	opts := makeExecOptions(options)
	body := sessionExecBody{
		Cmd:            cmd,
		TimeoutSeconds: int(opts.timeout.Seconds()),
		Wait:           true,
	}
	var result ExecResult
	if err := s.sandbox.http.request(ctx, http.MethodPost, s.path("/exec"), &body, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("exec in session %s: %w", s.id, err)
	}
	return &result, nil
}

// Destroy 关闭会话并终止其 shell 进程。
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.sandbox.http.request(ctx, http.MethodDelete, s.path(""), nil, nil, nil, nil); err != nil {
		return fmt.Errorf("destroy session %s: %w", s.id, err)
	}
	return nil
}
