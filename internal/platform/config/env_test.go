package config

import (
	"strings"
	"testing"
	"time"
)

type tableConfig struct {
	DBPath  string        `env:"CFG_DB_PATH"  envDefault:"data/table.db"`
	Timeout time.Duration `env:"CFG_TIMEOUT"  envDefault:"2s"`
	Locales []string      `env:"CFG_LOCALES"  envDefault:"en-US" envSeparator:","`
	Seats   int           `env:"CFG_SEATS"`
}

func TestParseEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want func(tableConfig) bool
	}{
		{
			name: "defaults",
			want: func(c tableConfig) bool {
				return c.DBPath == "data/table.db" && c.Timeout == 2*time.Second && len(c.Locales) == 1
			},
		},
		{
			name: "prefixed variables win",
			env:  map[string]string{"MACROTABLE_CFG_SEATS": "6", "CFG_SEATS": "9"},
			want: func(c tableConfig) bool { return c.Seats == 6 },
		},
		{
			name: "lists split on commas",
			env:  map[string]string{"MACROTABLE_CFG_LOCALES": "en-US,pt-BR"},
			want: func(c tableConfig) bool { return strings.Join(c.Locales, "|") == "en-US|pt-BR" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			var cfg tableConfig
			if err := ParseEnv(&cfg); err != nil {
				t.Fatalf("parse env: %v", err)
			}
			if !tt.want(cfg) {
				t.Fatalf("unexpected config %+v", cfg)
			}
		})
	}
}

func TestParseEnvWithPrefix(t *testing.T) {
	t.Setenv("SIDE_CFG_SEATS", "4")
	var cfg tableConfig
	if err := ParseEnvWithPrefix(&cfg, "SIDE_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Seats != 4 {
		t.Fatalf("seats = %d", cfg.Seats)
	}
}

func TestParseEnvErrors(t *testing.T) {
	if err := ParseEnv(nil); err == nil {
		t.Fatal("expected error for nil target")
	}

	t.Setenv("MACROTABLE_CFG_SEATS", "many")
	var cfg tableConfig
	err := ParseEnv(&cfg)
	if err == nil || !strings.HasPrefix(err.Error(), "parse env:") {
		t.Fatalf("err = %v", err)
	}
}
