package configfile

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/sandchest/sandchest-go/internal/env"
)

type profileConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

var (
	profileConfigs      map[string]*profileConfig
	profileConfigsError error
	profileConfigsOnce  sync.Once
)

// APIKeyFromConfigFile 从配置文件读取 API 密钥。
// 配置文件不存在时返回空值而非错误。
func APIKeyFromConfigFile() (string, error) {
	profile, err := getProfile()
	if err != nil || profile == nil {
		return "", err
	}
	return profile.APIKey, nil
}

// BaseURLFromConfigFile 从配置文件读取 API 服务地址。
func BaseURLFromConfigFile() (string, error) {
	profile, err := getProfile()
	if err != nil || profile == nil {
		return "", err
	}
	return profile.BaseURL, nil
}

func getProfile() (*profileConfig, error) {
	if err := load(); err != nil {
		return nil, err
	}
	profileName := env.ProfileFromEnvironment()
	if profileName == "" {
		profileName = "default"
	}
	profile, ok := profileConfigs[profileName]
	if !ok || profile == nil {
		return nil, nil
	}
	return profile, nil
}

func load() error {
	profileConfigsOnce.Do(func() {
		profileConfigsError = _load()
	})
	return profileConfigsError
}

func _load() error {
	configFilePath := env.ConfigFileFromEnvironment()
	if configFilePath == "" {
		configFilePath = getDefaultConfigFilePath()
	}
	if _, err := os.Stat(configFilePath); err != nil {
		return nil
	}
	_, err := toml.DecodeFile(configFilePath, &profileConfigs)
	return err
}

func getDefaultConfigFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return filepath.Join(homeDir, ".sandchest", "config.toml")
}
