package insight

import (
	"strings"
	"testing"
)

func TestInsightConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*InsightConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*InsightConfig) {}},
		{name: "sqlite without state path", mutate: func(c *InsightConfig) {
			c.Backend = BackendSQLite
			c.StatePath = ""
		}},
		{name: "unknown backend", mutate: func(c *InsightConfig) { c.Backend = "redis" }, wantErr: "unknown backend"},
		{name: "file without state path", mutate: func(c *InsightConfig) { c.StatePath = "" }, wantErr: "state_path"},
		{name: "zero z threshold", mutate: func(c *InsightConfig) { c.ZScoreThreshold = 0 }, wantErr: "zscore_threshold"},
		{name: "negative z threshold", mutate: func(c *InsightConfig) { c.ZScoreThreshold = -1 }, wantErr: "zscore_threshold"},
		{name: "zero server error floor", mutate: func(c *InsightConfig) { c.ServerErrorFloor = 0 }, wantErr: "server_error_floor"},
		{name: "negative max identities", mutate: func(c *InsightConfig) { c.MaxIdentities = -1 }, wantErr: "max_identities"},
		{name: "negative sigma", mutate: func(c *InsightConfig) { c.IdentitySigma = -3 }, wantErr: "identity thresholds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
