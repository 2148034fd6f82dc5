package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://chipledger.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebBind != "0.0.0.0:3000" {
		t.Errorf("WebBind = %q", cfg.WebBind)
	}
	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns = %d", cfg.DBMaxConns)
	}
	if cfg.DigestInterval != time.Minute {
		t.Errorf("DigestInterval = %s", cfg.DigestInterval)
	}
	if cfg.StrictApproval {
		t.Error("StrictApproval should default to false")
	}
	if !cfg.MetricsEnabled {
		t.Error("MetricsEnabled should default to true")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/chips")
	t.Setenv("STRICT_APPROVAL", "true")
	t.Setenv("DIGEST_INTERVAL", "5m")
	t.Setenv("DB_MAX_CONNS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.StrictApproval || cfg.DigestInterval != 5*time.Minute || cfg.DBMaxConns != 3 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestStore(t *testing.T) {
	tests := []struct {
		url     string
		backend Backend
		dsn     string
		wantErr bool
	}{
		{"postgres://localhost/db", BackendPostgres, "postgres://localhost/db", false},
		{"postgresql://localhost/db", BackendPostgres, "postgresql://localhost/db", false},
		{"sqlite:///var/lib/chips.db", BackendSQLite, "/var/lib/chips.db", false},
		{"file:chips.db", BackendSQLite, "chips.db", false},
		{"mysql://localhost/db", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			backend, dsn, err := (&Config{DatabaseURL: tt.url}).Store()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if backend != tt.backend || dsn != tt.dsn {
				t.Errorf("got (%s, %s), want (%s, %s)", backend, dsn, tt.backend, tt.dsn)
			}
		})
	}
}
