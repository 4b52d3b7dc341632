package cache_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vulnlab"
	"vulnlab/internal/adapter/fake"
	"vulnlab/internal/cache"
)

func writeManifest(t *testing.T, root, id string) {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := "services:\n  web:\n    image: nginx:1.25\n"
	if err := os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func snapshot(ids ...string) vulnlab.Snapshot {
	var snap vulnlab.Snapshot
	for _, id := range ids {
		category, label := vulnlab.SplitID(id)
		snap = append(snap, vulnlab.Environment{
			ID:       id,
			Category: category,
			Label:    label,
			Status:   vulnlab.StatusStopped,
		})
	}
	return snap
}

func TestStoreThenLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()
	c := cache.New(store, root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	got, ok := c.Load()
	if !ok {
		t.Fatal("Load missed after Store")
	}
	if len(got) != 1 || got[0].ID != "nginx/CVE-2021-23017" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestLoadSurvivesProcessRestart(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()

	if err := cache.New(store, root, time.Hour).Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// A fresh Cache has an empty memory tier and must read the store.
	fresh := cache.New(store, root, time.Hour)
	if _, ok := fresh.Load(); !ok {
		t.Fatal("Load missed from the durable tier")
	}
	if n := len(store.Calls("Load")); n != 1 {
		t.Fatalf("store Load calls = %d, want 1", n)
	}
}

func TestLoadRejectsExpiredEnvelope(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()

	writer := cache.New(store, root, 24*time.Hour)
	if err := writer.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	reader := cache.New(store, root, 24*time.Hour)
	reader.Now = func() time.Time { return time.Now().Add(25 * time.Hour) }
	if _, ok := reader.Load(); ok {
		t.Fatal("Load hit on an expired envelope")
	}
}

func TestLoadRejectsChangedManifestSet(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()

	if err := cache.New(store, root, time.Hour).Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	// A new environment appears on disk; the envelope's fingerprint no
	// longer matches and the cache must miss.
	writeManifest(t, root, "redis/CVE-2022-0543")
	if _, ok := cache.New(store, root, time.Hour).Load(); ok {
		t.Fatal("Load hit despite a manifest set change")
	}
}

func TestLoadRejectsForeignRoot(t *testing.T) {
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeManifest(t, rootA, "nginx/CVE-2021-23017")
	writeManifest(t, rootB, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()

	if err := cache.New(store, rootA, time.Hour).Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if _, ok := cache.New(store, rootB, time.Hour).Load(); ok {
		t.Fatal("Load hit with an envelope recorded for a different root")
	}
}

func TestLoadDegradesOnStoreError(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()
	store.LoadErr = func(string) error { return errors.New("database is locked") }

	if _, ok := cache.New(store, root, time.Hour).Load(); ok {
		t.Fatal("Load hit despite a store error")
	}
}

func TestInvalidateDropsBothTiers(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()
	c := cache.New(store, root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if err := c.Invalidate(); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	if _, ok := c.Load(); ok {
		t.Fatal("Load hit after Invalidate")
	}
	if n := len(store.Calls("Delete")); n != 1 {
		t.Fatalf("store Delete calls = %d, want 1", n)
	}
}

func TestUpdateStatusMemoryTierOnly(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	store := fake.NewEnvelopeStore()
	c := cache.New(store, root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !c.UpdateStatus("nginx/CVE-2021-23017", vulnlab.StatusRunning) {
		t.Fatal("UpdateStatus = false for a cached record")
	}

	got, ok := c.Load()
	if !ok || got[0].Status != vulnlab.StatusRunning {
		t.Fatalf("snapshot = %+v, want running", got)
	}

	// The durable envelope keeps the scan-time status.
	env, ok, err := store.Load(root)
	if err != nil || !ok {
		t.Fatalf("store Load: ok=%v err=%v", ok, err)
	}
	if env.Snapshot[0].Status != vulnlab.StatusStopped {
		t.Fatalf("durable status = %q, want stopped", env.Snapshot[0].Status)
	}
}

func TestUpdateStatusUnknownID(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	c := cache.New(fake.NewEnvelopeStore(), root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if c.UpdateStatus("redis/CVE-2022-0543", vulnlab.StatusRunning) {
		t.Fatal("UpdateStatus = true for an unknown identifier")
	}
}

func TestReconcileStatuses(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	writeManifest(t, root, "redis/CVE-2022-0543")
	c := cache.New(fake.NewEnvelopeStore(), root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017", "redis/CVE-2022-0543")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	c.ReconcileStatuses(map[string]bool{"redis/CVE-2022-0543": true})

	got, _ := c.Load()
	for _, e := range got {
		want := vulnlab.StatusStopped
		if e.ID == "redis/CVE-2022-0543" {
			want = vulnlab.StatusRunning
		}
		if e.Status != want {
			t.Errorf("%s status = %q, want %q", e.ID, e.Status, want)
		}
	}
}

func TestLoadedSnapshotIsACopy(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")
	c := cache.New(fake.NewEnvelopeStore(), root, time.Hour)

	if err := c.Store(snapshot("nginx/CVE-2021-23017")); err != nil {
		t.Fatalf("Store: %v", err)
	}

	first, _ := c.Load()
	first[0].Status = vulnlab.StatusRunning

	second, _ := c.Load()
	if second[0].Status != vulnlab.StatusStopped {
		t.Fatal("mutating a loaded snapshot leaked into the cache")
	}
}
