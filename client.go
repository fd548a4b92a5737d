package sandchest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sandchest/sandchest-go/internal/configfile"
	"github.com/sandchest/sandchest-go/internal/env"
)

// Version SDK 版本号。
const Version = "0.3.0"

const (
	// DefaultBaseURL 服务端默认地址。
	DefaultBaseURL = "https://api.sandchest.com"
	// DefaultTimeout 单次请求的默认超时。
	DefaultTimeout = 30 * time.Second
	// DefaultRetries 可重试失败的默认重试次数。
	DefaultRetries = 3
)

func userAgent() string {
	return "SandchestGoSDK/" + Version
}

// Config 客户端配置。
// 零值字段按 环境变量 → 配置文件 → 内置默认值 的顺序补全。
type Config struct {
	// APIKey 访问凭证，必填。
	// 未设置时依次回退到 SANDCHEST_API_KEY 环境变量与
	// ~/.sandchest/config.toml 配置文件。
	APIKey string `validate:"required"`
	// BaseURL 服务端地址，默认 DefaultBaseURL
	BaseURL string `validate:"omitempty,url"`
	// Timeout 单次请求超时，默认 DefaultTimeout
	Timeout time.Duration
	// Retries 重试次数，nil 表示 DefaultRetries，0 表示关闭重试
	Retries *int
	// HTTPClient 自定义底层 HTTP 客户端，通常无需设置
	HTTPClient *http.Client
}

var (
	configValidator     *validator.Validate
	configValidatorOnce sync.Once
)

func validateConfig(config *Config) error {
	configValidatorOnce.Do(func() {
		configValidator = validator.New()
	})
	return configValidator.Struct(config)
}

// Client 沙箱平台客户端，并发安全。
type Client struct {
	config Config
	http   *httpClient
}

// NewClient 创建客户端。config 可以为 nil，
// 此时全部字段从环境和配置文件推导。
func NewClient(config *Config) (*Client, error) {
	var cfg Config
	if config != nil {
		cfg = *config
	}
	if cfg.APIKey == "" {
		cfg.APIKey = env.APIKeyFromEnvironment()
	}
	if cfg.APIKey == "" {
		if apiKey, err := configfile.APIKeyFromConfigFile(); err == nil {
			cfg.APIKey = apiKey
		}
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sandchest: API key is required: set Config.APIKey, the SANDCHEST_API_KEY environment variable, or ~/.sandchest/config.toml")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = env.BaseURLFromEnvironment()
	}
	if cfg.BaseURL == "" {
		if baseURL, err := configfile.BaseURLFromConfigFile(); err == nil {
			cfg.BaseURL = baseURL
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retries := DefaultRetries
	if cfg.Retries != nil && *cfg.Retries >= 0 {
		retries = *cfg.Retries
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("sandchest: invalid config: %w", err)
	}

	return &Client{
		config: cfg,
		http:   newHTTPClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout, retries, cfg.HTTPClient),
	}, nil
}

// Create 创建沙箱并立即返回，此时沙箱通常处于 queued 状态。
func (c *Client) Create(ctx context.Context, params CreateParams) (*Sandbox, error) {
	var envelope sandboxEnvelope
	if err := c.http.request(ctx, http.MethodPost, "/v1/sandboxes", &params, nil, &envelope, nil); err != nil {
		return nil, fmt.Errorf("create sandbox: %w", err)
	}
	return newSandbox(c.http, envelope), nil
}

// CreateAndWait 创建沙箱并阻塞等待其进入 running 状态。
func (c *Client) CreateAndWait(ctx context.Context, params CreateParams, options ...PollOption) (*Sandbox, error) {
	sandbox, err := c.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	if err = sandbox.WaitReady(ctx, options...); err != nil {
		return nil, err
	}
	return sandbox, nil
}

// Get 按 ID 获取沙箱句柄。
func (c *Client) Get(ctx context.Context, sandboxID string) (*Sandbox, error) {
	var envelope sandboxEnvelope
	if err := c.http.request(ctx, http.MethodGet, "/v1/sandboxes/"+sandboxID, nil, nil, &envelope, nil); err != nil {
		return nil, fmt.Errorf("get sandbox %s: %w", sandboxID, err)
	}
	return newSandbox(c.http, envelope), nil
}

// List 按条件列举沙箱。params 为 nil 时不过滤。
func (c *Client) List(ctx context.Context, params *ListParams) ([]*Sandbox, error) {
	var envelope listSandboxesEnvelope
	if err := c.http.request(ctx, http.MethodGet, "/v1/sandboxes", nil, params.toQuery(), &envelope, nil); err != nil {
		return nil, fmt.Errorf("list sandboxes: %w", err)
	}
	sandboxes := make([]*Sandbox, 0, len(envelope.Sandboxes))
	for _, item := range envelope.Sandboxes {
		sandboxes = append(sandboxes, newSandbox(c.http, item))
	}
	return sandboxes, nil
}

// Close 关闭客户端并释放空闲连接。
// 关闭后发起的请求返回 connection_error，已获取的流不受影响。
func (c *Client) Close() {
	c.http.close()
}
