package config

import (
	"os"
	"strings"
)

const (
	appEnvVar              = "APP_ENV"
	environmentDevelopment = "development"
	environmentProduction  = "production"
	environmentStaging     = "staging"
	environmentTest        = "test"
)

const (
	EnvironmentDevelopment = environmentDevelopment
	EnvironmentProduction  = environmentProduction
	EnvironmentStaging     = environmentStaging
	EnvironmentTest        = environmentTest
)

var environmentAliases = map[string]string{
	"prod":    environmentProduction,
	"stag":    environmentStaging,
	"stage":   environmentStaging,
	"dev":     environmentDevelopment,
	"testing": environmentTest,
}

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config.production.yml",
	environmentStaging:    "config.staging.yml",
}

func getAppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return environmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolveConfigPath swaps the default config file for an environment specific
// one when APP_ENV names an environment that has its own file. An explicit
// non-default path always wins.
func ResolveConfigPath(path string) string {
	if path == "" {
		path = DefaultConfigPath
	}

	if envPath, ok := envConfigPaths[getAppEnvironment()]; ok && path == DefaultConfigPath {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	return path
}

// AppEnvironment returns the normalised APP_ENV value, defaulting to development.
func AppEnvironment() string {
	return getAppEnvironment()
}

// IsProductionLike reports whether env must refuse insecure defaults such as
// an empty admin token.
func IsProductionLike(env string) bool {
	switch env {
	case environmentProduction, environmentStaging:
		return true
	default:
		return false
	}
}
