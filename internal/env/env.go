package env

import (
	"os"
)

const (
	environmentVariableNameSandchestAPIKey     = "SANDCHEST_API_KEY"
	environmentVariableNameSandchestBaseURL    = "SANDCHEST_BASE_URL"
	environmentVariableNameSandchestConfigFile = "SANDCHEST_CONFIG_FILE"
	environmentVariableNameSandchestProfile    = "SANDCHEST_PROFILE"
)

func APIKeyFromEnvironment() string {
	return os.Getenv(environmentVariableNameSandchestAPIKey)
}

func BaseURLFromEnvironment() string {
	return os.Getenv(environmentVariableNameSandchestBaseURL)
}

func ConfigFileFromEnvironment() string {
	return os.Getenv(environmentVariableNameSandchestConfigFile)
}

func ProfileFromEnvironment() string {
	return os.Getenv(environmentVariableNameSandchestProfile)
}
