package policy

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"stratum-hq/bastion/pkg/search"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sharing-policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writePolicy(t, `
sensitive_fields:
  - source_name
  - handler_id
default_mode: need_to_know
need_to_know_enabled: true
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(p.SensitiveFields, []string{"source_name", "handler_id"}) {
		t.Errorf("sensitive fields = %v", p.SensitiveFields)
	}
	if p.DefaultMode != search.ModeNeedToKnow {
		t.Errorf("default mode = %q", p.DefaultMode)
	}
	if !p.NeedToKnowEnabled {
		t.Error("need_to_know_enabled = false")
	}
}

// TestLoad_PartialFile verifies omitted keys keep their built-in defaults
// rather than zeroing out.
func TestLoad_PartialFile(t *testing.T) {
	path := writePolicy(t, "default_mode: basic\n")

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.DefaultMode != search.ModeBasic {
		t.Errorf("default mode = %q", p.DefaultMode)
	}
	if !reflect.DeepEqual(p.SensitiveFields, search.SensitiveFields) {
		t.Errorf("sensitive fields = %v, want built-in default", p.SensitiveFields)
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	path := writePolicy(t, "default_mode: everything\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown mode")
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writePolicy(t, "default_mode: [oops\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestManager_EmptyPathUsesDefaults(t *testing.T) {
	m, err := NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Current().DefaultMode != search.ModeCompartmented {
		t.Errorf("default mode = %q", m.Current().DefaultMode)
	}
	if err := m.Reload(); err != nil {
		t.Errorf("Reload with no path should be a no-op, got %v", err)
	}
}

// TestManager_ReloadKeepsActiveOnBadEdit verifies a broken policy file never
// replaces a working one.
func TestManager_ReloadKeepsActiveOnBadEdit(t *testing.T) {
	path := writePolicy(t, "default_mode: basic\n")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Current().DefaultMode != search.ModeBasic {
		t.Fatalf("initial mode = %q", m.Current().DefaultMode)
	}

	if err := os.WriteFile(path, []byte("default_mode: bogus\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if m.Current().DefaultMode != search.ModeBasic {
		t.Errorf("active policy changed after failed reload: %q", m.Current().DefaultMode)
	}

	if err := os.WriteFile(path, []byte("default_mode: need_to_know\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m.Current().DefaultMode != search.ModeNeedToKnow {
		t.Errorf("mode after good reload = %q", m.Current().DefaultMode)
	}
}

func TestManager_EffectiveMode(t *testing.T) {
	tests := []struct {
		name      string
		policy    string
		requested search.Mode
		want      search.Mode
		wantErr   bool
	}{
		{
			name:      "empty falls back to policy default",
			policy:    "default_mode: basic\n",
			requested: "",
			want:      search.ModeBasic,
		},
		{
			name:      "explicit mode wins",
			policy:    "default_mode: basic\n",
			requested: search.ModeCompartmented,
			want:      search.ModeCompartmented,
		},
		{
			name:      "need_to_know honored when enabled",
			policy:    "need_to_know_enabled: true\n",
			requested: search.ModeNeedToKnow,
			want:      search.ModeNeedToKnow,
		},
		{
			name:      "need_to_know downgrades when disabled",
			policy:    "need_to_know_enabled: false\n",
			requested: search.ModeNeedToKnow,
			want:      search.ModeCompartmented,
		},
		{
			name:      "unknown mode rejected",
			policy:    "default_mode: basic\n",
			requested: "everything",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager(writePolicy(t, tt.policy))
			if err != nil {
				t.Fatalf("NewManager: %v", err)
			}

			got, err := m.EffectiveMode(tt.requested)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("EffectiveMode: %v", err)
			}
			if got != tt.want {
				t.Errorf("mode = %q, want %q", got, tt.want)
			}
		})
	}
}
