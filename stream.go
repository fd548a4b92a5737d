package sandchest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ExecEventType 执行事件类型。
type ExecEventType string

const (
	ExecEventStdout ExecEventType = "stdout"
	ExecEventStderr ExecEventType = "stderr"
	ExecEventExit   ExecEventType = "exit"
)

// ExecStreamEvent 执行流中的单个事件。
type ExecStreamEvent struct {
	// Seq 事件序号，从 0 开始单调递增
	Seq int `json:"seq"`
	// Type 事件类型
	Type ExecEventType `json:"t"`
	// Data 输出片段，stdout / stderr 事件携带
	Data string `json:"data"`
	// Code 退出码，exit 事件携带
	Code int `json:"code"`
	// DurationMs 执行耗时（毫秒），exit 事件携带
	DurationMs int64 `json:"duration_ms"`
}

var (
	frameSeparator = []byte("\n\n")
	dataPrefix     = []byte("data: ")
)

// ExecStream 执行事件的拉取句柄。单次使用，消费完毕后应调用 Close。
// 非 data 行被忽略，空载荷的 data 行被跳过，
// 事件可以跨任意网络分片边界到达。
type ExecStream struct {
	execID  string
	body    io.ReadCloser
	buf     []byte
	chunk   []byte
	pending []ExecStreamEvent
	err     error
	done    bool
}

func newExecStream(execID string, body io.ReadCloser) *ExecStream {
	return &ExecStream{
		execID: execID,
		body:   body,
		chunk:  make([]byte, 4096),
	}
}

// ExecID 返回该流对应的执行标识。
func (s *ExecStream) ExecID() string {
	return s.execID
}

// Next 返回下一个事件。流结束或出错时返回 false，
// 此后应检查 Err 区分正常结束与失败。
func (s *ExecStream) Next() (ExecStreamEvent, bool) {
	if s.err != nil {
		return ExecStreamEvent{}, false
	}
	for {
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			return ev, true
		}
		if ok, err := s.decodeFrame(); err != nil {
			s.fail(&Error{
				Code:    ErrCodeInternal,
				Message: fmt.Sprintf("invalid exec stream event: %s", err),
			})
			return ExecStreamEvent{}, false
		} else if ok {
			continue
		}
		if s.done {
			return ExecStreamEvent{}, false
		}

		n, err := s.body.Read(s.chunk)
		if n > 0 {
			s.buf = append(s.buf, s.chunk[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				s.fail(newConnectionError("exec stream interrupted: "+err.Error(), err))
				return ExecStreamEvent{}, false
			}
			_ = s.finish()
		}
	}
}

// decodeFrame 从缓冲区消费一个完整帧（以空行结尾），
// 把其中的事件追加到 pending。缓冲区中没有完整帧时返回 false。
func (s *ExecStream) decodeFrame() (bool, error) {
	idx := bytes.Index(s.buf, frameSeparator)
	if idx < 0 {
		return false, nil
	}
	frame := s.buf[:idx]
	s.buf = s.buf[idx+len(frameSeparator):]

	for _, line := range bytes.Split(frame, []byte("\n")) {
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]
		if len(payload) == 0 {
			continue
		}
		var ev ExecStreamEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return false, err
		}
		s.pending = append(s.pending, ev)
	}
	return true, nil
}

// Err 返回流的终止错误，正常结束时为 nil。
func (s *ExecStream) Err() error {
	return s.err
}

// Close 关闭流并释放底层连接，可重复调用。
func (s *ExecStream) Close() error {
	return s.finish()
}

func (s *ExecStream) fail(err error) {
	s.err = err
	_ = s.finish()
}

func (s *ExecStream) finish() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// Collect 消费剩余事件并聚合为完整执行结果。
// 流在 exit 事件前被远端截断时，退出码与耗时保持零值。
func (s *ExecStream) Collect() (*ExecResult, error) {
	return s.collect(ExecCallbacks{})
}

func (s *ExecStream) collect(callbacks ExecCallbacks) (*ExecResult, error) {
	result := ExecResult{ExecID: s.execID}
	var stdout, stderr strings.Builder
	for {
		ev, ok := s.Next()
		if !ok {
			break
		}
		switch ev.Type {
		case ExecEventStdout:
			stdout.WriteString(ev.Data)
			if callbacks.OnStdout != nil {
				callbacks.OnStdout(ev.Data)
			}
		case ExecEventStderr:
			stderr.WriteString(ev.Data)
			if callbacks.OnStderr != nil {
				callbacks.OnStderr(ev.Data)
			}
		case ExecEventExit:
			result.ExitCode = ev.Code
			result.DurationMs = ev.DurationMs
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	return &result, nil
}

// ExecCallbacks 流式执行的增量回调，未设置的回调被跳过。
type ExecCallbacks struct {
	// OnStdout 每个 stdout 片段到达时调用
	OnStdout func(data string)
	// OnStderr 每个 stderr 片段到达时调用
	OnStderr func(data string)
}
