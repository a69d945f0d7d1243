package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mixelka/provisor/pkg/models"
)

// Config application configuration
type Config struct {
	// HTTP API
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":5000"`
	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin123"`
	AdminToken    string `env:"ADMIN_TOKEN"`

	// Automation driver
	BrowserEndpoint string `env:"BROWSER_ENDPOINT" envDefault:"http://127.0.0.1:9333"`

	// Workers
	MaxWorkers int    `env:"MAX_WORKERS" envDefault:"1"`
	UserAgent  string `env:"USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36"`
	Headless   bool   `env:"HEADLESS" envDefault:"true"`

	// Mailbox providers (semicolon-separated, zipped by index)
	WorkerDomains  []string `env:"WORKER_DOMAINS" envSeparator:";"`
	EmailDomains   []string `env:"EMAIL_DOMAINS" envSeparator:";"`
	AdminPasswords []string `env:"ADMIN_PASSWORDS" envSeparator:";"`

	// Verification polling budgets. Registration historically waits longer
	// than refresh; both stay tunable.
	CodeAttemptsRegister int           `env:"CODE_ATTEMPTS_REGISTER" envDefault:"30"`
	CodeAttemptsRefresh  int           `env:"CODE_ATTEMPTS_REFRESH" envDefault:"15"`
	CodePollInterval     time.Duration `env:"CODE_POLL_INTERVAL" envDefault:"3s"`
	HTTPTimeout          time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// Browser fingerprint passed to the automation driver
	WindowSize          string `env:"WINDOW_SIZE" envDefault:"1920x1080"`
	Timezone            string `env:"TIMEZONE" envDefault:"Asia/Shanghai"`
	Locale              string `env:"LOCALE" envDefault:"zh-CN"`
	Platform            string `env:"PLATFORM" envDefault:"Win32"`
	ColorDepth          int    `env:"COLOR_DEPTH" envDefault:"24"`
	DeviceMemory        int    `env:"DEVICE_MEMORY" envDefault:"8"`
	HardwareConcurrency int    `env:"HARDWARE_CONCURRENCY" envDefault:"8"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Providers zips the provider lists into entries, skipping incomplete rows
func (c *Config) Providers() []models.Provider {
	var providers []models.Provider
	n := max(len(c.WorkerDomains), len(c.EmailDomains), len(c.AdminPasswords))
	for i := 0; i < n; i++ {
		p := models.Provider{
			WorkerDomain: at(c.WorkerDomains, i),
			MailDomain:   at(c.EmailDomains, i),
			AdminSecret:  at(c.AdminPasswords, i),
		}
		if p.WorkerDomain != "" && p.MailDomain != "" && p.AdminSecret != "" {
			providers = append(providers, p)
		}
	}
	return providers
}

func at(list []string, i int) string {
	if i < len(list) {
		return list[i]
	}
	return ""
}
