// Package config exposes process-wide configuration as composed interfaces
// backed by environment variables. Configuration is immutable after startup
// and shared read-only across requests.
package config

type Config interface {
	EnvConfig
	BrokerConfig
	SmtpConfig
	LimitConfig
}

type mainConfig struct {
	EnvVars
	Broker
	Smtp
	Limits
}

func New() Config {
	return mainConfig{}
}
