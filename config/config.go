// Package config loads application configuration from environment variables
// using github.com/caarlos0/env.
package config

// AppConfig is the main application configuration, composed from
// domain-specific config structs:
//   - database.go: Postgres and Redis configuration
//   - http.go: HTTP server configuration
//   - worker.go: queue worker and evaluation engine configuration
//   - services.go: service mode selection
type AppConfig struct {
	// IsDev controls development mode behavior.
	IsDev bool `env:"DEV" envDefault:"false"`

	// SecretsEncryptionKey encrypts stored credentials at rest. Must be 32
	// bytes when set; when empty, values are stored with a noop marker.
	SecretsEncryptionKey string `env:"SECRETS_ENCRYPTION_KEY"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP      HTTPConfig
	Worker    WorkerConfig
	Evaluator EvaluatorConfig

	// Services selects which service modes run, comma-delimited.
	Services string `env:"SERVICES" envDefault:"http"`
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.Worker.Sanitize(&c.Evaluator)
	c.Evaluator.Sanitize()
}

// GetEnabledServices returns the enabled service modes.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsPollerEnabled returns true if the background queue poller is enabled.
func (c *AppConfig) IsPollerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModePoller]
}
