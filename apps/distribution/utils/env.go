package utils

import (
	"os"
	"strings"
)

// EnvironmentVariable selects the deployment environment.
const EnvironmentVariable = "DIST_ENVIRONMENT"

// IsProd returns true if the service is running in production
func IsProd() bool {
	env := strings.ToLower(os.Getenv(EnvironmentVariable))
	return env == "production" || env == "prod"
}

// IsDev returns true if the service is running in development, which is
// also assumed when no environment is set
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvironmentVariable))
	return env == "development" || env == "dev" || env == ""
}

// GetEnvironment returns the current environment name
func GetEnvironment() string {
	env := os.Getenv(EnvironmentVariable)
	if env == "" {
		return "development"
	}
	return env
}
