package db

import "testing"

func TestPoolConfig(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		max     int32
		min     int32
		wantMax int32
		wantMin int32
		wantApp string
	}{
		{"explicit sizes", "postgres://u:p@localhost:5432/vocab", 8, 2, 8, 2, ApplicationName},
		{"min capped at max", "postgres://u:p@localhost:5432/vocab", 2, 5, 2, 2, ApplicationName},
		{"caller application name kept", "postgres://u:p@localhost:5432/vocab?application_name=etl", 4, 0, 4, 0, "etl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := PoolConfig(tt.url, tt.max, tt.min)
			if err != nil {
				t.Fatalf("PoolConfig failed: %v", err)
			}
			if cfg.MaxConns != tt.wantMax || cfg.MinConns != tt.wantMin {
				t.Errorf("expected %d/%d conns, got %d/%d", tt.wantMax, tt.wantMin, cfg.MaxConns, cfg.MinConns)
			}
			params := cfg.ConnConfig.RuntimeParams
			if params["default_transaction_read_only"] != "on" {
				t.Error("expected read-only sessions")
			}
			if params["application_name"] != tt.wantApp {
				t.Errorf("expected application_name %q, got %q", tt.wantApp, params["application_name"])
			}
		})
	}
}

func TestPoolConfig_InvalidURL(t *testing.T) {
	if _, err := PoolConfig("postgres://u:p@localhost:notaport/vocab", 4, 1); err == nil {
		t.Fatal("expected parse error")
	}
}
