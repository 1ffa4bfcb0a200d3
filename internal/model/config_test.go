package model

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabasePath == "" {
		t.Error("default database path should be set")
	}
	if cfg.Sync.InitialFetchLimit != 500 {
		t.Errorf("initial fetch limit = %d, want 500", cfg.Sync.InitialFetchLimit)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	want := &AppConfig{
		DatabasePath: "/tmp/mail.db",
		Sync: SyncConfig{
			TenantID:          "my-tenant",
			InitialFetchLimit: 250,
		},
		Bootstrap: BootstrapConfig{
			KnowledgeBasePath: "/data/kb",
			InternalDomain:    "mycompany.com",
		},
	}
	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if got.DatabasePath != want.DatabasePath {
		t.Errorf("database path = %q, want %q", got.DatabasePath, want.DatabasePath)
	}
	if got.Sync != want.Sync {
		t.Errorf("sync = %+v, want %+v", got.Sync, want.Sync)
	}
	if got.Bootstrap != want.Bootstrap {
		t.Errorf("bootstrap = %+v, want %+v", got.Bootstrap, want.Bootstrap)
	}
}

func TestLoadConfigFixesInvalidLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "database_path: /tmp/mail.db\nsync:\n  initial_fetch_limit: -5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sync.InitialFetchLimit != 500 {
		t.Errorf("initial fetch limit = %d, want default 500", cfg.Sync.InitialFetchLimit)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
	}{
		{"client", CategoryClient},
		{"CLIENT", CategoryClient},
		{"noise", CategoryNoise},
		{"", CategoryUnknown},
		{"garbage", CategoryUnknown},
	}
	for _, tc := range cases {
		if got := ParseCategory(tc.in); got != tc.want {
			t.Errorf("ParseCategory(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestParseImportance(t *testing.T) {
	cases := []struct {
		in   string
		want Importance
	}{
		{"high", ImportanceHigh},
		{"Low", ImportanceLow},
		{"normal", ImportanceNormal},
		{"", ImportanceNormal},
		{"urgent", ImportanceNormal},
	}
	for _, tc := range cases {
		if got := ParseImportance(tc.in); got != tc.want {
			t.Errorf("ParseImportance(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
