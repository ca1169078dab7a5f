package extension_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	forgetesting "github.com/xraph/forge/testing"
	"github.com/xraph/vessel"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/engine"
	"github.com/xraph/cadence/extension"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/job"
	"github.com/xraph/cadence/store/memory"
)

func fastConfig() extension.Config {
	return extension.Config{
		Cadence: cadence.Config{
			PollInterval:       20 * time.Millisecond,
			CronTickInterval:   50 * time.Millisecond,
			HeartbeatInterval:  20 * time.Millisecond,
			SignalPollInterval: 50 * time.Millisecond,
			Timezone:           "UTC",
		},
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// ──────────────────────────────────────────────────
// Metadata
// ──────────────────────────────────────────────────

func TestExtension_Metadata(t *testing.T) {
	ext := extension.New()

	if ext.Name() != extension.ExtensionName {
		t.Errorf("Name() = %q, want %q", ext.Name(), extension.ExtensionName)
	}
	if ext.Description() != extension.ExtensionDescription {
		t.Errorf("Description() = %q, want %q", ext.Description(), extension.ExtensionDescription)
	}
	if ext.Version() != extension.ExtensionVersion {
		t.Errorf("Version() = %q, want %q", ext.Version(), extension.ExtensionVersion)
	}
	if deps := ext.Dependencies(); len(deps) != 0 {
		t.Errorf("Dependencies() = %v, want empty", deps)
	}
}

// ──────────────────────────────────────────────────
// Register → Engine built and provided
// ──────────────────────────────────────────────────

func TestExtension_Register(t *testing.T) {
	ext := extension.New(extension.WithStore(memory.New()), extension.WithLogger(quietLogger()))
	fapp := forgetesting.NewTestApp("test-app", "0.1.0")

	if err := ext.Register(fapp); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ext.Engine() == nil {
		t.Fatal("expected engine to be initialized after Register")
	}
	if got := ext.Config().BasePath; got != "/api/cadence" {
		t.Errorf("BasePath = %q, want /api/cadence", got)
	}

	eng, err := vessel.Inject[*engine.Engine](fapp.Container())
	if err != nil {
		t.Fatalf("Inject engine: %v", err)
	}
	if eng != ext.Engine() {
		t.Error("container engine differs from Engine()")
	}
}

func TestExtension_RegisterNoStore(t *testing.T) {
	ext := extension.New()
	fapp := forgetesting.NewTestApp("no-store-app", "0.1.0")

	if err := ext.Register(fapp); err == nil {
		t.Fatal("expected error when registering without a store")
	}
}

func TestExtension_RequireConfig(t *testing.T) {
	ext := extension.New(extension.WithStore(memory.New()), extension.WithRequireConfig(true))
	fapp := forgetesting.NewTestApp("require-config-app", "0.1.0")

	if err := ext.Register(fapp); err == nil {
		t.Fatal("expected error when config is required but missing")
	}
}

func TestExtension_RejectsEmptyWorkerTags(t *testing.T) {
	ext := extension.New(extension.WithStore(memory.New()), extension.WithWorkerTags([]string{}))
	fapp := forgetesting.NewTestApp("tags-app", "0.1.0")

	if err := ext.Register(fapp); err == nil {
		t.Fatal("expected error for empty worker tags")
	}
}

// ──────────────────────────────────────────────────
// Full lifecycle: Register → Start → run a job → Stop
// ──────────────────────────────────────────────────

func TestExtension_Lifecycle(t *testing.T) {
	s := memory.New()
	ext := extension.New(
		extension.WithStore(s),
		extension.WithConfig(fastConfig()),
		extension.WithLogger(quietLogger()),
	)
	fapp := forgetesting.NewTestApp("lifecycle-app", "0.1.0")

	if err := ext.Register(fapp); err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine.Register(ext.Engine(), job.NewDefinition("ping", func(_ context.Context, _ struct{}) (any, error) {
		return "pong", nil
	}))

	ctx := context.Background()
	if err := ext.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ext.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}

	j, err := engine.ScheduleJob(ctx, ext.Engine(), "ping", struct{}{}, time.Time{})
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for {
		got, err := s.GetJob(ctx, j.ID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if got.Status == job.StatusFinished {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %s, want finished", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := ext.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if workers, _ := s.ListWorkers(ctx, time.Time{}); len(workers) != 0 {
		t.Errorf("workers after Stop = %d, want 0", len(workers))
	}
}

func TestExtension_DisableMigrate(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithConfig(fastConfig()),
		extension.WithDisableMigrate(),
		extension.WithLogger(quietLogger()),
	)
	fapp := forgetesting.NewTestApp("no-migrate-app", "0.1.0")

	if err := ext.Register(fapp); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx := context.Background()
	if err := ext.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := ext.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Before Register
// ──────────────────────────────────────────────────

func TestExtension_StartBeforeRegister(t *testing.T) {
	if err := extension.New().Start(context.Background()); err == nil {
		t.Fatal("expected error when starting before Register")
	}
}

func TestExtension_HealthBeforeRegister(t *testing.T) {
	if err := extension.New().Health(context.Background()); err == nil {
		t.Fatal("expected error when checking health before Register")
	}
}

func TestExtension_StopBeforeRegister(t *testing.T) {
	if err := extension.New().Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Register should be no-op, got: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Routes
// ──────────────────────────────────────────────────

func TestExtension_Routes(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithBasePath("/jobs-api"),
		extension.WithLogger(quietLogger()),
	)
	fapp := forgetesting.NewTestApp("routes-app", "0.1.0")
	if err := ext.Register(fapp); err != nil {
		t.Fatalf("Register: %v", err)
	}
	engine.Register(ext.Engine(), job.NewDefinition("report", func(_ context.Context, _ struct{}) (any, error) {
		return nil, nil
	}))
	j, err := engine.ScheduleJob(context.Background(), ext.Engine(), "report", struct{}{}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ScheduleJob: %v", err)
	}

	ts := httptest.NewServer(fapp.Router())
	defer ts.Close()

	var got job.Job
	if code := getJSON(t, ts.URL+"/jobs-api/jobs/"+j.ID.String(), &got); code != http.StatusOK {
		t.Fatalf("GET job = %d", code)
	}
	if got.ID != j.ID || got.Name != "report" {
		t.Errorf("job = %+v", got)
	}

	if code := getJSON(t, ts.URL+"/jobs-api/jobs/"+id.NewJobID().String(), nil); code != http.StatusNotFound {
		t.Errorf("GET unknown job = %d, want 404", code)
	}
	if code := getJSON(t, ts.URL+"/jobs-api/jobs/not-an-id", nil); code != http.StatusBadRequest {
		t.Errorf("GET malformed job = %d, want 400", code)
	}

	var counters map[string]float64
	if code := getJSON(t, ts.URL+"/jobs-api/counters", &counters); code != http.StatusOK {
		t.Fatalf("GET counters = %d", code)
	}
	if counters["cadence.job.scheduled"] != 1 {
		t.Errorf("scheduled = %v, want 1", counters["cadence.job.scheduled"])
	}

	resp, err := http.Post(ts.URL+"/jobs-api/jobs/"+j.ID.String()+"/kill", "application/json", nil)
	if err != nil {
		t.Fatalf("POST kill: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST kill = %d, want 202", resp.StatusCode)
	}
	killed, err := ext.Engine().GetJob(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if killed.Status != job.StatusKilled {
		t.Errorf("status = %s, want killed", killed.Status)
	}
}

func TestExtension_DisableRoutes(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithDisableRoutes(),
		extension.WithLogger(quietLogger()),
	)
	fapp := forgetesting.NewTestApp("no-routes-app", "0.1.0")
	if err := ext.Register(fapp); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ts := httptest.NewServer(fapp.Router())
	defer ts.Close()

	if code := getJSON(t, ts.URL+"/api/cadence/counters", nil); code != http.StatusNotFound {
		t.Errorf("GET counters with routes disabled = %d, want 404", code)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test server
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}
