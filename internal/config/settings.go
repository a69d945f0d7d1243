package config

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/mixelka/provisor/pkg/models"
)

// ErrProviderIndex is returned when a provider index does not exist
var ErrProviderIndex = errors.New("provider index out of range")

const (
	minWorkers = 1
	maxWorkers = 10
)

// Fingerprint is the browser fingerprint forwarded to the automation driver
type Fingerprint struct {
	WindowSize          string `json:"window_size"`
	Timezone            string `json:"timezone"`
	Locale              string `json:"locale"`
	Platform            string `json:"platform"`
	ColorDepth          int    `json:"color_depth"`
	DeviceMemory        int    `json:"device_memory"`
	HardwareConcurrency int    `json:"hardware_concurrency"`
}

// Settings holds the runtime-mutable part of the configuration. All access
// goes through the mutex; values handed out are copies.
type Settings struct {
	mu          sync.Mutex
	maxWorkers  int
	userAgent   string
	headless    bool
	providers   []models.Provider
	fingerprint Fingerprint
}

// NewSettings seeds runtime settings from the loaded environment
func NewSettings(cfg *Config) *Settings {
	return &Settings{
		maxWorkers: clampWorkers(cfg.MaxWorkers),
		userAgent:  cfg.UserAgent,
		headless:   cfg.Headless,
		providers:  cfg.Providers(),
		fingerprint: Fingerprint{
			WindowSize:          cfg.WindowSize,
			Timezone:            cfg.Timezone,
			Locale:              cfg.Locale,
			Platform:            cfg.Platform,
			ColorDepth:          cfg.ColorDepth,
			DeviceMemory:        cfg.DeviceMemory,
			HardwareConcurrency: cfg.HardwareConcurrency,
		},
	}
}

func clampWorkers(n int) int {
	return max(minWorkers, min(n, maxWorkers))
}

// MaxWorkers returns the current concurrency bound
func (s *Settings) MaxWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxWorkers
}

// SetMaxWorkers updates the bound, clamped to [1, 10]. Lowering it never
// evicts running tasks; it only restricts future slot acquisition.
func (s *Settings) SetMaxWorkers(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxWorkers = clampWorkers(n)
}

// UserAgent returns the outbound identity string used for driver sessions
// and credential export
func (s *Settings) UserAgent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userAgent
}

// SetUserAgent updates the outbound identity string
func (s *Settings) SetUserAgent(ua string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgent = ua
}

// Headless returns whether driver sessions run headless
func (s *Settings) Headless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headless
}

// SetHeadless updates the headless flag
func (s *Settings) SetHeadless(headless bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headless = headless
}

// Fingerprint returns a copy of the driver fingerprint
func (s *Settings) Fingerprint() Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fingerprint
}

// SetFingerprint replaces the driver fingerprint
func (s *Settings) SetFingerprint(fp Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fp
}

// Providers returns a copy of the configured mailbox providers
func (s *Settings) Providers() []models.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Provider, len(s.providers))
	copy(out, s.providers)
	return out
}

// RandomProvider picks one provider at random, false when none configured
func (s *Settings) RandomProvider() (models.Provider, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.providers) == 0 {
		return models.Provider{}, false
	}
	return s.providers[rand.IntN(len(s.providers))], true
}

// ProviderForDomain matches a mail domain case-insensitively, false when no
// provider serves it
func (s *Settings) ProviderForDomain(domain string) (models.Provider, bool) {
	domain = strings.ToLower(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.providers {
		if strings.ToLower(p.MailDomain) == domain {
			return p, true
		}
	}
	return models.Provider{}, false
}

// AddProvider appends a provider entry
func (s *Settings) AddProvider(p models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, p)
}

// UpdateProvider overwrites the non-empty fields of the entry at index
func (s *Settings) UpdateProvider(index int, p models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.providers) {
		return ErrProviderIndex
	}
	if p.WorkerDomain != "" {
		s.providers[index].WorkerDomain = p.WorkerDomain
	}
	if p.MailDomain != "" {
		s.providers[index].MailDomain = p.MailDomain
	}
	if p.AdminSecret != "" {
		s.providers[index].AdminSecret = p.AdminSecret
	}
	return nil
}

// DeleteProvider removes the entry at index
func (s *Settings) DeleteProvider(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.providers) {
		return ErrProviderIndex
	}
	s.providers = append(s.providers[:index], s.providers[index+1:]...)
	return nil
}
