package config

type SmtpConfig interface {
	GetSmtpHost() string
	GetSmtpPort() string
	GetSmtpAccount() string
	GetSmtpPassword() string
	GetFromAddress() string
}

type Smtp struct{}

var _ SmtpConfig = Smtp{}

func (Smtp) GetSmtpHost() string {
	return GetEnv("SMTP_HOST", "localhost")
}

func (Smtp) GetSmtpPort() string {
	return GetEnv("SMTP_PORT", "25")
}

func (Smtp) GetSmtpAccount() string {
	return GetEnv("SMTP_ACCOUNT", "")
}

func (Smtp) GetSmtpPassword() string {
	return GetEnv("SMTP_PASSWORD", "")
}

func (Smtp) GetFromAddress() string {
	return GetEnv(fromAddressVar, "no-reply@localhost")
}
