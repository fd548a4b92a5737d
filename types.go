package sandchest

import (
	"net/url"
	"strconv"
	"time"
)

// SandboxStatus 沙箱生命周期状态。
type SandboxStatus string

const (
	StatusQueued       SandboxStatus = "queued"
	StatusProvisioning SandboxStatus = "provisioning"
	StatusRunning      SandboxStatus = "running"
	StatusStopping     SandboxStatus = "stopping"
	StatusStopped      SandboxStatus = "stopped"
	StatusFailed       SandboxStatus = "failed"
	StatusDeleted      SandboxStatus = "deleted"
)

// terminal 判断该状态是否不可能再迁移到 running。
func (s SandboxStatus) terminal() bool {
	switch s {
	case StatusStopped, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// ExecResult 一次命令执行的完整结果。
type ExecResult struct {
	// ExecID 执行标识
	ExecID string `json:"exec_id"`
	// ExitCode 进程退出码
	ExitCode int `json:"exit_code"`
	// Stdout 标准输出全文
	Stdout string `json:"stdout"`
	// Stderr 标准错误全文
	Stderr string `json:"stderr"`
	// DurationMs 执行耗时（毫秒）
	DurationMs int64 `json:"duration_ms"`
}

// ForkTreeNode 派生树中的一个节点。
type ForkTreeNode struct {
	// SandboxID 沙箱 ID
	SandboxID string `json:"sandbox_id"`
	// Status 节点当前状态
	Status SandboxStatus `json:"status"`
	// ForkedFrom 父沙箱 ID，根节点为 nil
	ForkedFrom *string `json:"forked_from"`
	// ForkedAt 派生时刻，根节点为 nil
	ForkedAt *time.Time `json:"forked_at"`
	// Children 直接子节点的沙箱 ID 列表
	Children []string `json:"children"`
}

// ForkTree 以某个沙箱为根的完整派生树。
type ForkTree struct {
	// Root 根沙箱 ID
	Root string `json:"root"`
	// Tree 树中全部节点，含根节点
	Tree []ForkTreeNode `json:"tree"`
}

// FileEntryType 文件条目类型。
type FileEntryType string

const (
	FileTypeFile      FileEntryType = "file"
	FileTypeDirectory FileEntryType = "directory"
)

// FileEntry 沙箱文件系统中的一个条目。
type FileEntry struct {
	// Name 文件名
	Name string `json:"name"`
	// Path 沙箱内绝对路径
	Path string `json:"path"`
	// Type 条目类型
	Type FileEntryType `json:"type"`
	// SizeBytes 文件大小，目录为 nil
	SizeBytes *int64 `json:"size_bytes"`
}

// Artifact 已登记的产物。
type Artifact struct {
	// ID 产物标识
	ID string `json:"id"`
	// Name 产物名
	Name string `json:"name"`
	// Mime 内容类型
	Mime string `json:"mime"`
	// Bytes 大小（字节）
	Bytes int64 `json:"bytes"`
	// SHA256 内容摘要
	SHA256 string `json:"sha256"`
	// DownloadURL 下载地址
	DownloadURL string `json:"download_url"`
	// ExecID 产生该产物的执行，可能为 nil
	ExecID *string `json:"exec_id"`
	// CreatedAt 登记时刻
	CreatedAt time.Time `json:"created_at"`
}

// RegisterArtifactsResult 产物登记结果。
// Registered 可能小于 Total，未命中的路径被静默跳过。
type RegisterArtifactsResult struct {
	// Registered 实际登记数量
	Registered int `json:"registered"`
	// Total 请求登记数量
	Total int `json:"total"`
}

// CreateParams 创建沙箱的参数，零值字段不发送。
type CreateParams struct {
	// Image 基础镜像
	Image string `json:"image,omitempty"`
	// Profile 资源规格
	Profile string `json:"profile,omitempty"`
	// Env 注入的环境变量
	Env map[string]string `json:"env,omitempty"`
	// TTLSeconds 沙箱存活上限（秒）
	TTLSeconds int `json:"ttl_seconds,omitempty"`
	// QueueTimeoutSeconds 排队等待上限（秒）
	QueueTimeoutSeconds int `json:"queue_timeout_seconds,omitempty"`
}

// ForkParams 派生沙箱的参数，零值字段不发送。
type ForkParams struct {
	// Env 在父环境基础上覆盖的环境变量
	Env map[string]string `json:"env,omitempty"`
	// TTLSeconds 派生沙箱的存活上限（秒）
	TTLSeconds int `json:"ttl_seconds,omitempty"`
}

// SessionParams 创建会话的参数，零值字段不发送。
type SessionParams struct {
	// Shell 会话使用的 shell
	Shell string `json:"shell,omitempty"`
	// Env 会话级环境变量
	Env map[string]string `json:"env,omitempty"`
}

// ListParams 列举沙箱的过滤条件，零值字段不参与过滤。
type ListParams struct {
	// Status 按状态过滤
	Status SandboxStatus
	// Image 按镜像过滤
	Image string
	// ForkedFrom 按父沙箱过滤
	ForkedFrom string
	// Cursor 分页游标
	Cursor string
	// Limit 单页上限
	Limit int
}

func (p *ListParams) toQuery() url.Values {
	if p == nil {
		return nil
	}
	query := make(url.Values)
	if p.Status != "" {
		query.Set("status", string(p.Status))
	}
	if p.Image != "" {
		query.Set("image", p.Image)
	}
	if p.ForkedFrom != "" {
		query.Set("forked_from", p.ForkedFrom)
	}
	if p.Cursor != "" {
		query.Set("cursor", p.Cursor)
	}
	if p.Limit > 0 {
		query.Set("limit", strconv.Itoa(p.Limit))
	}
	return query
}

// sandboxEnvelope 沙箱对象的线上表示。
type sandboxEnvelope struct {
	SandboxID string        `json:"sandbox_id"`
	Status    SandboxStatus `json:"status"`
	ReplayURL string        `json:"replay_url"`
}

type listSandboxesEnvelope struct {
	Sandboxes []sandboxEnvelope `json:"sandboxes"`
	Cursor    string            `json:"cursor"`
}

type statusEnvelope struct {
	Status SandboxStatus `json:"status"`
}

type execAsyncEnvelope struct {
	ExecID string `json:"exec_id"`
}

type filesEnvelope struct {
	Files []FileEntry `json:"files"`
}

type artifactsEnvelope struct {
	Artifacts []Artifact `json:"artifacts"`
}

type sessionEnvelope struct {
	SessionID string `json:"session_id"`
}
