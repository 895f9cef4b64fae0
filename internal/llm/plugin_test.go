package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HerbHall/logsentinel/internal/config"
	"github.com/HerbHall/logsentinel/pkg/plugin"
	"github.com/HerbHall/logsentinel/pkg/plugin/plugintest"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPluginContract(t *testing.T) {
	plugintest.TestPluginContract(t, func() plugin.Plugin { return New() })
}

func initModule(t *testing.T, v *viper.Viper) (*Module, error) {
	t.Helper()
	m := New()
	deps := plugin.Dependencies{Logger: zaptest.NewLogger(t)}
	if v != nil {
		deps.Config = config.New(v)
	}
	return m, m.Init(context.Background(), deps)
}

func TestInit_NoKeyDisablesProvider(t *testing.T) {
	m, err := initModule(t, nil)
	require.NoError(t, err)
	assert.Nil(t, m.Provider())
	assert.Equal(t, "healthy", m.Health(context.Background()).Status)
}

func TestInit_NoneProvider(t *testing.T) {
	v := viper.New()
	v.Set("provider", "none")
	v.Set("openai.api_key", "sk-test")
	m, err := initModule(t, v)
	require.NoError(t, err)
	assert.Nil(t, m.Provider())
}

func TestInit_UnknownProvider(t *testing.T) {
	v := viper.New()
	v.Set("provider", "carrier-pigeon")
	_, err := initModule(t, v)
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestHealth_CachesPing(t *testing.T) {
	var pings atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			http.NotFound(w, r)
			return
		}
		pings.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"}]}`))
	}))
	defer srv.Close()

	v := viper.New()
	v.Set("openai.api_key", "sk-test")
	v.Set("openai.base_url", srv.URL)
	v.Set("ping_interval", "1m")
	m, err := initModule(t, v)
	require.NoError(t, err)
	require.NotNil(t, m.Provider())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, "healthy", m.Health(context.Background()).Status)
	assert.EqualValues(t, 1, pings.Load(), "health within the interval reuses the start ping")

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "healthy", m.Health(context.Background()).Status)
	assert.EqualValues(t, 2, pings.Load())
}

func TestStart_UnreachableIsDegraded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	v := viper.New()
	v.Set("openai.api_key", "sk-test")
	v.Set("openai.base_url", srv.URL)
	m, err := initModule(t, v)
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()), "an unreachable provider does not stop startup")
	h := m.Health(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "unavailable", h.Details["kind"])
}
