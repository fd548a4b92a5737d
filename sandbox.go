package sandchest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sandbox 沙箱句柄，并发安全的操作入口。
// Status 反映最近一次从服务端观察到的状态，不会自动刷新。
type Sandbox struct {
	id        string
	status    SandboxStatus
	replayURL string
	http      *httpClient
}

func newSandbox(http *httpClient, envelope sandboxEnvelope) *Sandbox {
	return &Sandbox{
		id:        envelope.SandboxID,
		status:    envelope.Status,
		replayURL: envelope.ReplayURL,
		http:      http,
	}
}

// ID 返回沙箱 ID。
func (s *Sandbox) ID() string {
	return s.id
}

// Status 返回最近一次观察到的状态。
func (s *Sandbox) Status() SandboxStatus {
	return s.status
}

// ReplayURL 返回回放地址。
func (s *Sandbox) ReplayURL() string {
	return s.replayURL
}

func (s *Sandbox) path(suffix string) string {
	return "/v1/sandboxes/" + s.id + suffix
}

// Refresh 从服务端拉取最新状态。
func (s *Sandbox) Refresh(ctx context.Context) error {
	var envelope sandboxEnvelope
	if err := s.http.request(ctx, http.MethodGet, s.path(""), nil, nil, &envelope, nil); err != nil {
		return fmt.Errorf("get sandbox %s: %w", s.id, err)
	}
	s.status = envelope.Status
	s.replayURL = envelope.ReplayURL
	return nil
}

// WaitReady 轮询沙箱状态直到 running。
// 沙箱进入 stopped、failed 或 deleted 时立即失败，
// 超过等待上限时返回 timeout 错误。
func (s *Sandbox) WaitReady(ctx context.Context, options ...PollOption) error {
	opts := makePollOptions(options)
	err := pollLoop(ctx, opts, func(attempt int) (bool, error) {
		if err := s.Refresh(ctx); err != nil {
			return false, err
		}
		if opts.onPoll != nil {
			opts.onPoll(attempt, s.status)
		}
		if s.status == StatusRunning {
			return true, nil
		}
		if s.status.terminal() {
			return false, &Error{
				Code:    ErrCodeSandboxNotRunning,
				Message: fmt.Sprintf("sandbox %s reached terminal status %q while waiting for it to start", s.id, s.status),
			}
		}
		return false, nil
	})
	if err == errPollTimeout {
		return newTimeoutError(
			fmt.Sprintf("sandbox %s did not become ready within %s", s.id, opts.timeout),
			opts.timeout.Milliseconds())
	}
	return err
}

// Fork 从当前沙箱派生一个写时复制副本。
func (s *Sandbox) Fork(ctx context.Context, params ForkParams) (*Sandbox, error) {
	var envelope sandboxEnvelope
	if err := s.http.request(ctx, http.MethodPost, s.path("/fork"), &params, nil, &envelope, nil); err != nil {
		return nil, fmt.Errorf("fork sandbox %s: %w", s.id, err)
	}
	return newSandbox(s.http, envelope), nil
}

// ForkN 并发派生 n 个副本。任何一次派生失败都会使整体失败，
// 返回的切片顺序与请求顺序一致。
func (s *Sandbox) ForkN(ctx context.Context, n int, params ForkParams) ([]*Sandbox, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	forks := make([]*Sandbox, n)
	for i := 0; i < n; i++ {
		i := i
		group.Go(func() error {
			fork, err := s.Fork(groupCtx, params)
			if err != nil {
				return err
			}
			forks[i] = fork
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return forks, nil
}

// Forks 返回以当前沙箱为根的完整派生树。
func (s *Sandbox) Forks(ctx context.Context) (*ForkTree, error) {
	var tree ForkTree
	if err := s.http.request(ctx, http.MethodGet, s.path("/forks"), nil, nil, &tree, nil); err != nil {
		return nil, fmt.Errorf("get fork tree of sandbox %s: %w", s.id, err)
	}
	return &tree, nil
}

// Stop 停止沙箱，磁盘内容保留。
func (s *Sandbox) Stop(ctx context.Context) error {
	var envelope statusEnvelope
	if err := s.http.request(ctx, http.MethodPost, s.path("/stop"), nil, nil, &envelope, nil); err != nil {
		return fmt.Errorf("stop sandbox %s: %w", s.id, err)
	}
	s.status = envelope.Status
	return nil
}

// Destroy 销毁沙箱并释放全部资源。
func (s *Sandbox) Destroy(ctx context.Context) error {
	if err := s.http.request(ctx, http.MethodDelete, s.path(""), nil, nil, nil, nil); err != nil {
		return fmt.Errorf("destroy sandbox %s: %w", s.id, err)
	}
	s.status = StatusDeleted
	return nil
}

// EnsureStopped 仅在最近观察到的状态为 running 时停止沙箱，
// 适合放在 defer 中做兜底清理。
func (s *Sandbox) EnsureStopped(ctx context.Context) error {
	if s.status != StatusRunning {
		return nil
	}
	return s.Stop(ctx)
}

type execOptions struct {
	argv    []string
	cwd     string
	env     map[string]string
	timeout time.Duration
}

// ExecOption 调整命令执行行为。
type ExecOption func(*execOptions)

// WithCwd 设置命令的工作目录。
func WithCwd(cwd string) ExecOption {
	return func(o *execOptions) {
		o.cwd = cwd
	}
}

// WithEnvs 设置命令级环境变量。
func WithEnvs(env map[string]string) ExecOption {
	return func(o *execOptions) {
		o.env = env
	}
}

// WithCommandTimeout 设置沙箱内命令的执行时长上限。
func WithCommandTimeout(timeout time.Duration) ExecOption {
	return func(o *execOptions) {
		o.timeout = timeout
	}
}

// WithArgv 以 argv 形式提交命令，不经过 shell 解释。
// 设置后 cmd 参数不再使用，可传空字符串。
func WithArgv(argv ...string) ExecOption {
	return func(o *execOptions) {
		o.argv = argv
	}
}

func makeExecOptions(options []ExecOption) *execOptions {
	var opts execOptions
	for _, option := range options {
		option(&opts)
	}
	return &opts
}

type execBody struct {
	// Cmd 为字符串时交给 shell 解释，为字符串数组时按 argv 直接执行
	Cmd            interface{}       `json:"cmd"`
	Cwd            string            `json:"cwd,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	Wait           bool              `json:"wait"`
}

func (o *execOptions) body(cmd string, wait bool) *execBody {
	var command interface{} = cmd
	if len(o.argv) > 0 {
		command = o.argv
	}
	return &execBody{
		Cmd:            command,
		Cwd:            o.cwd,
		Env:            o.env,
		TimeoutSeconds: int(o.timeout.Seconds()),
		Wait:           wait,
	}
}

// Exec 在沙箱内执行命令并阻塞到完成，返回完整结果。
func (s *Sandbox) Exec(ctx context.Context, cmd string, options ...ExecOption) (*ExecResult, error) {
	opts := makeExecOptions(options)
	var result ExecResult
	if err := s.http.request(ctx, http.MethodPost, s.path("/exec"), opts.body(cmd, true), nil, &result, nil); err != nil {
		return nil, fmt.Errorf("exec in sandbox %s: %w", s.id, err)
	}
	return &result, nil
}

// ExecStream 异步执行命令，返回事件流的拉取句柄。
// 句柄单次使用，调用方负责 Close。
func (s *Sandbox) ExecStream(ctx context.Context, cmd string, options ...ExecOption) (*ExecStream, error) {
	opts := makeExecOptions(options)
	var started execAsyncEnvelope
	if err := s.http.request(ctx, http.MethodPost, s.path("/exec"), opts.body(cmd, false), nil, &started, nil); err != nil {
		return nil, fmt.Errorf("exec in sandbox %s: %w", s.id, err)
	}

	header := make(http.Header)
	header.Set("Accept", "text/event-stream")
	resp, err := s.http.requestStream(ctx, http.MethodGet, s.path("/exec/"+started.ExecID+"/stream"), nil, header)
	if err != nil {
		return nil, fmt.Errorf("open exec stream %s: %w", started.ExecID, err)
	}
	return newExecStream(started.ExecID, resp.Body), nil
}

// ExecCallback 异步执行命令，输出片段到达时实时回调，
// 流结束后返回聚合的完整结果。
func (s *Sandbox) ExecCallback(ctx context.Context, cmd string, callbacks ExecCallbacks, options ...ExecOption) (*ExecResult, error) {
	stream, err := s.ExecStream(ctx, cmd, options...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return stream.collect(callbacks)
}

// Upload 将字节内容写入沙箱内的指定路径。
func (s *Sandbox) Upload(ctx context.Context, path string, content []byte) error {
	query := url.Values{"path": {path}}
	if _, err := s.http.requestRaw(ctx, http.MethodPut, s.path("/files"), query, content, "", nil); err != nil {
		return fmt.Errorf("upload %s to sandbox %s: %w", path, s.id, err)
	}
	return nil
}

// UploadDir 上传 tar 归档并在指定路径展开为目录。
func (s *Sandbox) UploadDir(ctx context.Context, path string, archive []byte) error {
	query := url.Values{"path": {path}, "batch": {"true"}}
	if _, err := s.http.requestRaw(ctx, http.MethodPut, s.path("/files"), query, archive, "application/x-tar", nil); err != nil {
		return fmt.Errorf("upload directory %s to sandbox %s: %w", path, s.id, err)
	}
	return nil
}

// Download 读取沙箱内文件的完整内容。
func (s *Sandbox) Download(ctx context.Context, path string) ([]byte, error) {
	query := url.Values{"path": {path}}
	content, err := s.http.requestRaw(ctx, http.MethodGet, s.path("/files"), query, nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("download %s from sandbox %s: %w", path, s.id, err)
	}
	return content, nil
}

// ListFiles 列举沙箱内某个目录下的条目。
func (s *Sandbox) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	query := url.Values{"path": {path}, "list": {"true"}}
	var envelope filesEnvelope
	if err := s.http.request(ctx, http.MethodGet, s.path("/files"), nil, query, &envelope, nil); err != nil {
		return nil, fmt.Errorf("list files %s in sandbox %s: %w", path, s.id, err)
	}
	return envelope.Files, nil
}

// RemoveFile 删除沙箱内的文件或目录。
func (s *Sandbox) RemoveFile(ctx context.Context, path string) error {
	query := url.Values{"path": {path}}
	if err := s.http.request(ctx, http.MethodDelete, s.path("/files"), nil, query, nil, nil); err != nil {
		return fmt.Errorf("remove %s from sandbox %s: %w", path, s.id, err)
	}
	return nil
}

type registerArtifactsBody struct {
	Paths []string `json:"paths"`
}

// RegisterArtifacts 将沙箱内的一组路径登记为产物。
// 不存在的路径被跳过，结果中的 Registered 反映实际登记数量。
func (s *Sandbox) RegisterArtifacts(ctx context.Context, paths []string) (*RegisterArtifactsResult, error) {
	var result RegisterArtifactsResult
	body := registerArtifactsBody{Paths: paths}
	if err := s.http.request(ctx, http.MethodPost, s.path("/artifacts"), &body, nil, &result, nil); err != nil {
		return nil, fmt.Errorf("register artifacts in sandbox %s: %w", s.id, err)
	}
	return &result, nil
}

// Artifacts 列举沙箱已登记的全部产物。
func (s *Sandbox) Artifacts(ctx context.Context) ([]Artifact, error) {
	var envelope artifactsEnvelope
	if err := s.http.request(ctx, http.MethodGet, s.path("/artifacts"), nil, nil, &envelope, nil); err != nil {
		return nil, fmt.Errorf("list artifacts of sandbox %s: %w", s.id, err)
	}
	return envelope.Artifacts, nil
}

// CreateSession 在沙箱内创建一个持久 shell 会话。
func (s *Sandbox) CreateSession(ctx context.Context, params SessionParams) (*Session, error) {
	var envelope sessionEnvelope
	if err := s.http.request(ctx, http.MethodPost, s.path("/sessions"), &params, nil, &envelope, nil); err != nil {
		return nil, fmt.Errorf("create session in sandbox %s: %w", s.id, err)
	}
	return &Session{
		id:      envelope.SessionID,
		sandbox: s,
	}, nil
}
