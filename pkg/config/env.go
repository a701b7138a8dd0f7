package config

import "strings"

// Deployment environments
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// NormalizeEnvironment lowercases and trims an environment name, defaulting
// to development when empty.
func NormalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return EnvDevelopment
	}
	return env
}

// IsProductionLike reports whether an environment must satisfy production
// configuration requirements.
func IsProductionLike(env string) bool {
	env = NormalizeEnvironment(env)
	return env == EnvStaging || env == EnvProduction
}
