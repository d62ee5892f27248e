// Package policy loads and hot-reloads the sharing policy file.
//
// The sharing policy is operator-controlled runtime configuration: which
// document fields are sensitive, which filter mode searches run in by
// default, and whether need-to-know enforcement is active. It lives in a
// YAML file that can be edited without restarting the service; a file
// watcher applies changes after a debounce interval.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"stratum-hq/bastion/pkg/search"
)

// Policy is the operator-editable sharing policy.
type Policy struct {
	// SensitiveFields names the document fields masked at search time.
	SensitiveFields []string `yaml:"sensitive_fields"`

	// DefaultMode is the filter mode used when a request does not specify
	// one: basic, compartmented or need_to_know.
	DefaultMode search.Mode `yaml:"default_mode"`

	// NeedToKnowEnabled gates need-to-know enforcement. When false,
	// requests asking for need_to_know mode are downgraded to
	// compartmented.
	NeedToKnowEnabled bool `yaml:"need_to_know_enabled"`
}

// Default returns the built-in policy used when no file is configured.
func Default() *Policy {
	return &Policy{
		SensitiveFields:   append([]string(nil), search.SensitiveFields...),
		DefaultMode:       search.ModeCompartmented,
		NeedToKnowEnabled: true,
	}
}

// Validate checks the policy for consistency.
func (p *Policy) Validate() error {
	if !search.ValidMode(p.DefaultMode) {
		return fmt.Errorf("invalid default_mode %q", p.DefaultMode)
	}
	for _, f := range p.SensitiveFields {
		if f == "" {
			return fmt.Errorf("empty sensitive field name")
		}
	}
	return nil
}

// Load reads and validates a policy file.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy file %s: %w", path, err)
	}
	return p, nil
}

// Manager holds the active policy and swaps it atomically on reload.
type Manager struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Policy
}

// NewManager creates a manager with the policy loaded from path. An empty
// path yields the built-in default policy and Reload becomes a no-op.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:    path,
		logger:  slog.Default().With("component", "policy.manager"),
		current: Default(),
	}
	if path != "" {
		p, err := Load(path)
		if err != nil {
			return nil, err
		}
		m.current = p
	}
	return m, nil
}

// Current returns the active policy. The returned value must not be
// modified.
func (m *Manager) Current() *Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload re-reads the policy file. On failure the active policy is kept: a
// bad edit must not take down enforcement.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}

	p, err := Load(m.path)
	if err != nil {
		m.logger.Error("policy reload failed, keeping active policy", "error", err)
		return err
	}

	m.mu.Lock()
	m.current = p
	m.mu.Unlock()

	m.logger.Info("sharing policy reloaded",
		"path", m.path,
		"default_mode", string(p.DefaultMode),
		"sensitive_fields", len(p.SensitiveFields),
		"need_to_know_enabled", p.NeedToKnowEnabled,
	)
	return nil
}

// EffectiveMode resolves the filter mode for a request: an empty requested
// mode falls back to the policy default, and need_to_know downgrades to
// compartmented while need-to-know enforcement is disabled.
func (m *Manager) EffectiveMode(requested search.Mode) (search.Mode, error) {
	p := m.Current()

	mode := requested
	if mode == "" {
		mode = p.DefaultMode
	}
	if !search.ValidMode(mode) {
		return "", fmt.Errorf("unknown filter mode %q", mode)
	}
	if mode == search.ModeNeedToKnow && !p.NeedToKnowEnabled {
		mode = search.ModeCompartmented
	}
	return mode, nil
}
