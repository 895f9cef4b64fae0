package registry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/HerbHall/logsentinel/pkg/plugin"
	"go.uber.org/zap"
)

// testPlugin is a minimal plugin for testing.
type testPlugin struct {
	info      plugin.PluginInfo
	initErr   error
	stopErr   error
	panicOn   string
	stopOrder *[]string
}

func newTestPlugin(name string, deps ...string) *testPlugin {
	return &testPlugin{
		info: plugin.PluginInfo{
			Name:         name,
			Version:      "1.0.0",
			Description:  "test plugin " + name,
			Dependencies: deps,
			APIVersion:   plugin.APIVersionCurrent,
		},
	}
}

func (p *testPlugin) Info() plugin.PluginInfo { return p.info }

func (p *testPlugin) Init(_ context.Context, _ plugin.Dependencies) error {
	if p.panicOn == "init" {
		panic("boom")
	}
	return p.initErr
}

func (p *testPlugin) Start(_ context.Context) error {
	if p.panicOn == "start" {
		panic("boom")
	}
	return nil
}

func (p *testPlugin) Stop(_ context.Context) error {
	if p.stopOrder != nil {
		*p.stopOrder = append(*p.stopOrder, p.info.Name)
	}
	if p.panicOn == "stop" {
		panic("boom")
	}
	return p.stopErr
}

// testHTTPPlugin implements both Plugin and HTTPProvider.
type testHTTPPlugin struct {
	testPlugin
	routes []plugin.Route
}

func (p *testHTTPPlugin) Routes() []plugin.Route { return p.routes }

// testEventSubPlugin implements both Plugin and EventSubscriber.
type testEventSubPlugin struct {
	testPlugin
	subscriptions []plugin.Subscription
}

func (p *testEventSubPlugin) Subscriptions() []plugin.Subscription { return p.subscriptions }

// testBus records Subscribe and unsubscribe calls.
type testBus struct {
	topics       []string
	unsubscribed int
}

func (b *testBus) Publish(_ context.Context, _ plugin.Event) error { return nil }
func (b *testBus) Subscribe(topic string, _ plugin.EventHandler) (unsubscribe func()) {
	b.topics = append(b.topics, topic)
	return func() { b.unsubscribed++ }
}

func testDeps() func(string) plugin.Dependencies {
	return func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop().Named(name)}
	}
}

func mustRegister(t *testing.T, reg *Registry, plugins ...plugin.Plugin) {
	t.Helper()
	for _, p := range plugins {
		if err := reg.Register(p); err != nil {
			t.Fatalf("Register(%s) error = %v", p.Info().Name, err)
		}
	}
}

func TestRegister(t *testing.T) {
	reg := New(zap.NewNop())
	mustRegister(t, reg, newTestPlugin("collector"))

	if err := reg.Register(newTestPlugin("collector")); err == nil {
		t.Error("expected error on duplicate registration")
	}
	if err := reg.Register(newTestPlugin("")); err == nil {
		t.Error("expected error on empty name")
	}
}

func TestValidateWithDeps(t *testing.T) {
	reg := New(zap.NewNop())
	mustRegister(t, reg,
		newTestPlugin("webhook", "report"),
		newTestPlugin("report", "insight", "llm"),
		newTestPlugin("insight"),
		newTestPlugin("llm"),
		newTestPlugin("collector", "insight"),
	)

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	pos := make(map[string]int)
	for i, name := range reg.Names() {
		pos[name] = i
	}
	for _, edge := range [][2]string{
		{"insight", "report"},
		{"llm", "report"},
		{"report", "webhook"},
		{"insight", "collector"},
	} {
		if pos[edge[0]] >= pos[edge[1]] {
			t.Errorf("%s must start before %s, order = %v", edge[0], edge[1], reg.Names())
		}
	}
}

func TestValidateCycleDetection(t *testing.T) {
	reg := New(zap.NewNop())
	mustRegister(t, reg, newTestPlugin("a", "b"), newTestPlugin("b", "a"))

	err := reg.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("Validate() error = %v, want cycle error", err)
	}
}

func TestValidateMissingDep(t *testing.T) {
	t.Run("required", func(t *testing.T) {
		reg := New(zap.NewNop())
		p := newTestPlugin("report", "insight")
		p.info.Required = true
		mustRegister(t, reg, p)
		if err := reg.Validate(); err == nil {
			t.Fatal("expected error for required plugin with missing dependency")
		}
	})

	t.Run("optional is disabled and cascades", func(t *testing.T) {
		reg := New(zap.NewNop())
		mustRegister(t, reg, newTestPlugin("report", "insight"), newTestPlugin("webhook", "report"))
		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !reg.IsDisabled("report") || !reg.IsDisabled("webhook") {
			t.Error("expected report and webhook to be disabled")
		}
	})
}

func TestAPIVersionOutOfRange(t *testing.T) {
	for _, v := range []int{plugin.APIVersionMin - 1, plugin.APIVersionCurrent + 1} {
		reg := New(zap.NewNop())
		p := newTestPlugin("old")
		p.info.APIVersion = v
		mustRegister(t, reg, p)
		if err := reg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if !reg.IsDisabled("old") {
			t.Errorf("APIVersion %d: expected plugin to be disabled", v)
		}
	}
}

func TestInitAll(t *testing.T) {
	t.Run("required failure aborts", func(t *testing.T) {
		reg := New(zap.NewNop())
		p := newTestPlugin("insight")
		p.info.Required = true
		p.initErr = errors.New("state unreadable")
		mustRegister(t, reg, p)
		_ = reg.Validate()

		if err := reg.InitAll(context.Background(), testDeps()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("optional failure disables", func(t *testing.T) {
		reg := New(zap.NewNop())
		p := newTestPlugin("webhook")
		p.initErr = errors.New("bad url")
		mustRegister(t, reg, p, newTestPlugin("insight"))
		_ = reg.Validate()

		if err := reg.InitAll(context.Background(), testDeps()); err != nil {
			t.Fatalf("InitAll() error = %v", err)
		}
		if !reg.IsDisabled("webhook") {
			t.Error("expected webhook to be disabled")
		}
		if _, ok := reg.Get("webhook"); ok {
			t.Error("Get() must not return a disabled plugin")
		}
		if _, ok := reg.Get("insight"); !ok {
			t.Error("Get(insight) should succeed")
		}
	})
}

func TestInitAll_WiresEventSubscriber(t *testing.T) {
	reg := New(zap.NewNop())

	noop := func(context.Context, plugin.Event) {}
	p := &testEventSubPlugin{
		testPlugin: *newTestPlugin("report"),
		subscriptions: []plugin.Subscription{
			{Topic: "insight.verdict.ready", Handler: noop},
			{Topic: "collector.window.collected", Handler: noop},
		},
	}
	mustRegister(t, reg, p)
	_ = reg.Validate()

	bus := &testBus{}
	err := reg.InitAll(context.Background(), func(name string) plugin.Dependencies {
		return plugin.Dependencies{Logger: zap.NewNop().Named(name), Bus: bus}
	})
	if err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}

	if len(bus.topics) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(bus.topics))
	}
	if bus.topics[0] != "insight.verdict.ready" {
		t.Errorf("topics[0] = %q", bus.topics[0])
	}

	reg.StopAll(context.Background())
	if bus.unsubscribed != 2 {
		t.Errorf("unsubscribed = %d, want 2", bus.unsubscribed)
	}
}

func TestPanicRecovery(t *testing.T) {
	t.Run("optional init panic disables", func(t *testing.T) {
		reg := New(zap.NewNop())
		p := newTestPlugin("panicker")
		p.panicOn = "init"
		mustRegister(t, reg, p, newTestPlugin("normal"))
		_ = reg.Validate()

		if err := reg.InitAll(context.Background(), testDeps()); err != nil {
			t.Fatalf("InitAll() error = %v", err)
		}
		if !reg.IsDisabled("panicker") || reg.IsDisabled("normal") {
			t.Error("expected only the panicking plugin to be disabled")
		}
	})

	t.Run("required start panic returns error", func(t *testing.T) {
		reg := New(zap.NewNop())
		p := newTestPlugin("panicker")
		p.info.Required = true
		p.panicOn = "start"
		mustRegister(t, reg, p)
		_ = reg.Validate()
		_ = reg.InitAll(context.Background(), testDeps())

		err := reg.StartAll(context.Background())
		if err == nil || !strings.Contains(err.Error(), "panicked") {
			t.Fatalf("StartAll() error = %v, want panic error", err)
		}
	})
}

func TestStopAll_ReverseOrderContinuesOnError(t *testing.T) {
	reg := New(zap.NewNop())
	var order []string

	insight := newTestPlugin("insight")
	report := newTestPlugin("report", "insight")
	webhook := newTestPlugin("webhook", "report")
	for _, p := range []*testPlugin{insight, report, webhook} {
		p.stopOrder = &order
	}
	report.stopErr = errors.New("flush failed")
	webhook.panicOn = "stop"

	mustRegister(t, reg, insight, report, webhook)
	_ = reg.Validate()
	_ = reg.InitAll(context.Background(), testDeps())
	_ = reg.StartAll(context.Background())

	reg.StopAll(context.Background())

	want := []string{"webhook", "report", "insight"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("stop order = %v, want %v", order, want)
	}
}

func TestAllRoutesAndRoles(t *testing.T) {
	reg := New(zap.NewNop())
	hp := &testHTTPPlugin{
		testPlugin: *newTestPlugin("insight"),
		routes: []plugin.Route{
			{Method: http.MethodGet, Path: "/verdict", Handler: func(http.ResponseWriter, *http.Request) {}},
		},
	}
	hp.info.Roles = []string{"analytics"}
	mustRegister(t, reg, hp, newTestPlugin("collector"))
	_ = reg.Validate()

	routes := reg.AllRoutes()
	if len(routes) != 1 || len(routes["insight"]) != 1 {
		t.Fatalf("AllRoutes() = %v", routes)
	}
	if got := reg.ResolveByRole("analytics"); len(got) != 1 || got[0].Info().Name != "insight" {
		t.Errorf("ResolveByRole(analytics) = %v", got)
	}
	if got := reg.ResolveByRole("llm"); len(got) != 0 {
		t.Errorf("ResolveByRole(llm) = %v, want empty", got)
	}
}

func TestValidate_RegistrationOrderBreaksTies(t *testing.T) {
	reg := New(zap.NewNop())
	mustRegister(t, reg,
		newTestPlugin("collector", "insight"),
		newTestPlugin("insight"),
		newTestPlugin("llm"),
		newTestPlugin("report"),
		newTestPlugin("webhook"),
	)
	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := "insight,collector,llm,report,webhook"
	if got := strings.Join(reg.Names(), ","); got != want {
		t.Errorf("start order = %s, want %s", got, want)
	}
}

func TestDisabled_RecordsReason(t *testing.T) {
	reg := New(zap.NewNop())
	p := newTestPlugin("webhook")
	p.initErr = errors.New("url must be https")
	mustRegister(t, reg, p, newTestPlugin("report", "llm"))
	_ = reg.Validate()
	_ = reg.InitAll(context.Background(), testDeps())

	reasons := reg.Disabled()
	if len(reasons) != 2 {
		t.Fatalf("Disabled() = %v, want two entries", reasons)
	}
	if !strings.Contains(reasons["webhook"], "url must be https") {
		t.Errorf("webhook reason = %q", reasons["webhook"])
	}
	if !strings.Contains(reasons["report"], `"llm" is not registered`) {
		t.Errorf("report reason = %q", reasons["report"])
	}
}

func TestValidate_RequiredPluginWithBadAPIVersion(t *testing.T) {
	reg := New(zap.NewNop())
	p := newTestPlugin("insight")
	p.info.Required = true
	p.info.APIVersion = plugin.APIVersionCurrent + 1
	mustRegister(t, reg, p)

	err := reg.Validate()
	if err == nil || !strings.Contains(err.Error(), "plugin API") {
		t.Fatalf("Validate() error = %v, want API version error", err)
	}
}
