package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"vulnlab"
	"vulnlab/internal/adapter/fake"
	"vulnlab/internal/cache"
	"vulnlab/internal/compose"
	"vulnlab/internal/registry"
	"vulnlab/internal/scan"
)

func writeEnv(t *testing.T, root, id, image string) {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "services:\n  web:\n    image: " + image + "\n    ports:\n      - \"8080:80\"\n"
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

type harness struct {
	root      string
	registry  *registry.Registry
	store     *fake.EnvelopeStore
	inspector *fake.ImageInspector
	runner    *fake.ComposeRunner
	engine    *fake.Engine
	recorder  *tracetest.SpanRecorder
}

func newHarness(t *testing.T, withEngine bool) *harness {
	t.Helper()
	root := t.TempDir()
	writeEnv(t, root, "nginx/CVE-2021-23017", "nginx:1.25")
	writeEnv(t, root, "redis/CVE-2022-0543", "redis:7")

	h := &harness{
		root:      root,
		store:     fake.NewEnvelopeStore(),
		inspector: fake.NewImageInspector("nginx:1.25", "redis:7"),
		runner:    fake.NewComposeRunner(),
		recorder:  tracetest.NewSpanRecorder(),
	}

	var engine registry.Engine
	if withEngine {
		h.engine = fake.NewEngine()
		engine = h.engine
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.recorder))
	h.registry = registry.New(registry.Dependencies{
		Root:    root,
		Scanner: &scan.Scanner{Root: root, Inspector: h.inspector, Workers: 2},
		Cache:   cache.New(h.store, root, time.Hour),
		Lifecycle: &compose.Driver{
			Root:      root,
			Runner:    h.runner,
			Inspector: h.inspector,
			Style:     compose.StyleModern,
		},
		Engine: engine,
		Tracer: provider.Tracer("registry-test"),
	})
	return h
}

func TestListScansOnColdCache(t *testing.T) {
	h := newHarness(t, false)

	snap, err := h.registry.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("len = %d, want 2", len(snap))
	}
	if snap[0].ID != "nginx/CVE-2021-23017" || snap[1].ID != "redis/CVE-2022-0543" {
		t.Fatalf("order = %s, %s", snap[0].ID, snap[1].ID)
	}
	if n := len(h.store.Calls("Store")); n != 1 {
		t.Fatalf("envelope Store calls = %d, want 1", n)
	}
}

func TestListServesFromCache(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h.inspector.Reset()

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if n := len(h.inspector.Calls("ImageExists")); n != 0 {
		t.Fatalf("ImageExists calls on a warm cache = %d, want 0", n)
	}
}

func TestListForceRescans(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h.inspector.Reset()

	if _, err := h.registry.List(context.Background(), true); err != nil {
		t.Fatal(err)
	}
	if n := len(h.inspector.Calls("ImageExists")); n == 0 {
		t.Fatal("force=true served from cache, want a rescan")
	}
}

func TestListReconcilesLiveStatuses(t *testing.T) {
	h := newHarness(t, true)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h.engine.SetRunningDir(filepath.Join(h.root, "redis", "CVE-2022-0543"), true)

	snap, err := h.registry.List(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]vulnlab.Status{}
	for _, e := range snap {
		byID[e.ID] = e.Status
	}
	if byID["redis/CVE-2022-0543"] != vulnlab.StatusRunning {
		t.Errorf("redis status = %q, want running", byID["redis/CVE-2022-0543"])
	}
	if byID["nginx/CVE-2021-23017"] != vulnlab.StatusStopped {
		t.Errorf("nginx status = %q, want stopped", byID["nginx/CVE-2021-23017"])
	}
}

func TestListEngineFailureKeepsStatuses(t *testing.T) {
	h := newHarness(t, true)

	h.engine.SetRunningDir(filepath.Join(h.root, "redis", "CVE-2022-0543"), true)
	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	h.engine.RunningProjectDirsErr = func(context.Context) error {
		return errors.New("cannot connect to the docker daemon")
	}
	snap, err := h.registry.List(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if i := snap.Find("redis/CVE-2022-0543"); snap[i].Status != vulnlab.StatusRunning {
		t.Fatalf("status = %q, want the last reconciled value", snap[i].Status)
	}
}

func TestConcurrentRebuildsShareOneScan(t *testing.T) {
	h := newHarness(t, false)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.inspector.ImageExistsErr = func(context.Context, string) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}

	results := make(chan int, 2)
	go func() {
		snap, err := h.registry.List(context.Background(), true)
		if err != nil {
			t.Error(err)
		}
		results <- len(snap)
	}()
	<-started

	// The first scan is parked inside the inspector; this caller must
	// join it rather than start a second one.
	go func() {
		snap, err := h.registry.List(context.Background(), true)
		if err != nil {
			t.Error(err)
		}
		results <- len(snap)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		if n := <-results; n != 2 {
			t.Fatalf("snapshot len = %d, want 2", n)
		}
	}
	if n := len(h.store.Calls("Store")); n != 1 {
		t.Fatalf("envelope Store calls = %d, want 1 coalesced rebuild", n)
	}
}

func TestStartMarksRunning(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := h.registry.Start(context.Background(), "nginx/CVE-2021-23017"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap, _ := h.registry.List(context.Background(), false)
	if i := snap.Find("nginx/CVE-2021-23017"); snap[i].Status != vulnlab.StatusRunning {
		t.Fatalf("status = %q, want running", snap[i].Status)
	}
}

func TestStartFailureKeepsStatus(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	h.runner.Script("docker compose up -d", fake.RunResult{
		Stderr: "port is already allocated",
		Err:    errors.New("exit status 1"),
	})

	err := h.registry.Start(context.Background(), "nginx/CVE-2021-23017")
	var opErr *compose.OpError
	if !errors.As(err, &opErr) || !opErr.PortConflict {
		t.Fatalf("err = %v, want a port-conflict OpError", err)
	}

	// No engine is wired, so the scanned status is unknown and a failed
	// start must leave it that way.
	snap, _ := h.registry.List(context.Background(), false)
	if i := snap.Find("nginx/CVE-2021-23017"); snap[i].Status != vulnlab.StatusUnknown {
		t.Fatalf("status = %q, want unchanged after failed start", snap[i].Status)
	}
}

func TestStopMarksStopped(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	if err := h.registry.Start(context.Background(), "nginx/CVE-2021-23017"); err != nil {
		t.Fatal(err)
	}
	if err := h.registry.Stop(context.Background(), "nginx/CVE-2021-23017"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	snap, _ := h.registry.List(context.Background(), false)
	if i := snap.Find("nginx/CVE-2021-23017"); snap[i].Status != vulnlab.StatusStopped {
		t.Fatalf("status = %q, want stopped", snap[i].Status)
	}
}

func TestRefreshInvalidatesAndRescans(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	writeEnv(t, h.root, "tomcat/CVE-2017-12615", "tomcat:8")
	h.inspector.Add("tomcat:8")

	snap, err := h.registry.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3 after refresh", len(snap))
	}
	if n := len(h.store.Calls("Delete")); n != 1 {
		t.Fatalf("envelope Delete calls = %d, want 1", n)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t, false)

	stats, err := h.registry.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
	if stats.WithLocalImages != 2 {
		t.Errorf("WithLocalImages = %d, want 2", stats.WithLocalImages)
	}
	if stats.Categories["nginx"] != 1 || stats.Categories["redis"] != 1 {
		t.Errorf("Categories = %v", stats.Categories)
	}
}

func TestRunningWithoutEngine(t *testing.T) {
	h := newHarness(t, false)

	containers, err := h.registry.Running(context.Background())
	if err != nil {
		t.Fatalf("Running: %v", err)
	}
	if containers == nil || len(containers) != 0 {
		t.Fatalf("containers = %#v, want empty non-nil slice", containers)
	}
}

func TestListEmitsSpans(t *testing.T) {
	h := newHarness(t, false)

	if _, err := h.registry.List(context.Background(), false); err != nil {
		t.Fatal(err)
	}

	spans := h.recorder.Ended()
	list := findSpan(spans, "registry.list")
	if list == nil {
		t.Fatal("no registry.list span")
	}
	if findSpan(spans, "registry.scan") == nil {
		t.Fatal("no registry.scan span for a cold cache")
	}
	for _, attr := range list.Attributes() {
		if string(attr.Key) == "cache.hit" && attr.Value.AsBool() {
			t.Fatal("cache.hit = true on a cold cache")
		}
	}
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}
