package sandchest

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultPollInterval 轮询间隔的默认值。
	DefaultPollInterval = 1 * time.Second
	// DefaultWaitTimeout 等待沙箱就绪的默认上限。
	DefaultWaitTimeout = 120 * time.Second
)

type pollOptions struct {
	interval time.Duration
	timeout  time.Duration
	onPoll   func(attempt int, status SandboxStatus)
}

// PollOption 调整轮询行为。
type PollOption func(*pollOptions)

// WithPollInterval 设置两次轮询之间的间隔。
func WithPollInterval(interval time.Duration) PollOption {
	return func(o *pollOptions) {
		if interval > 0 {
			o.interval = interval
		}
	}
}

// WithWaitTimeout 设置等待的总时长上限。
func WithWaitTimeout(timeout time.Duration) PollOption {
	return func(o *pollOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithOnPoll 注册每次轮询后的观察回调。
func WithOnPoll(fn func(attempt int, status SandboxStatus)) PollOption {
	return func(o *pollOptions) {
		o.onPoll = fn
	}
}

func makePollOptions(options []PollOption) *pollOptions {
	opts := pollOptions{
		interval: DefaultPollInterval,
		timeout:  DefaultWaitTimeout,
	}
	for _, option := range options {
		option(&opts)
	}
	return &opts
}

var errPollTimeout = errors.New("poll timeout")

// pollLoop 重复调用 pollFn 直到其报告完成、返回错误、
// 累计等待达到上限或 ctx 被取消。
func pollLoop(ctx context.Context, opts *pollOptions, pollFn func(attempt int) (bool, error)) error {
	begin := time.Now()
	for attempt := 1; ; attempt++ {
		done, err := pollFn(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Since(begin) >= opts.timeout {
			return errPollTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.interval):
		}
	}
}
