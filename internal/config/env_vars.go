package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar      = "PORT"
	appNameVar      = "APP_NAME"
	publicURLVar    = "PUBLIC_URL"
	redisURLVar     = "REDIS_URL"
	keyFileVar      = "KEY_FILE"
	originsVar      = "ALLOWED_ORIGINS"
	fromAddressVar  = "FROM_ADDRESS"
	limitCountVar   = "LIMIT_PER_EMAIL"
	limitWindowVar  = "LIMIT_WINDOW"
	sessionTTLVar   = "SESSION_TTL"
	discoveryTTLVar = "DISCOVERY_TTL"
	keysTTLVar      = "KEYS_TTL"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetPublicURL() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "3333")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Email Broker")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetPublicURL returns the externally reachable base URL of this broker,
// used as the token issuer and for all links handed to users and providers.
func (EnvVars) GetPublicURL() string {
	return GetEnv(publicURLVar, "http://localhost:3333")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
