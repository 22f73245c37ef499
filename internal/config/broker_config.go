package config

import (
	"strings"
	"time"
)

type BrokerConfig interface {
	// GetAllowedOrigins returns the client_id whitelist, or nil when every
	// origin is allowed.
	GetAllowedOrigins() []string
	// GetRedisURL returns the Redis connection URL; empty selects the
	// in-memory stores.
	GetRedisURL() string
	// GetKeyFile points at the PEM-encoded RSA signing key; empty selects
	// an ephemeral key.
	GetKeyFile() string
	GetSessionTTL() time.Duration
	GetDiscoveryTTL() time.Duration
	GetKeysTTL() time.Duration
}

type Broker struct{}

var _ BrokerConfig = Broker{}

func (Broker) GetAllowedOrigins() []string {
	raw := GetEnv(originsVar, "")
	if raw == "" {
		return nil
	}

	origins := make([]string, 0)
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (Broker) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

func (Broker) GetKeyFile() string {
	return GetEnv(keyFileVar, "")
}

func (Broker) GetSessionTTL() time.Duration {
	return GetDurationEnv(sessionTTLVar, 15*time.Minute)
}

func (Broker) GetDiscoveryTTL() time.Duration {
	return GetDurationEnv(discoveryTTLVar, time.Hour)
}

func (Broker) GetKeysTTL() time.Duration {
	return GetDurationEnv(keysTTLVar, time.Hour)
}

// GetDurationEnv parses a duration from the environment, falling back on
// missing or malformed values.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(GetEnv(envVar, ""))
	if err != nil {
		return defaultValue
	}
	return value
}
