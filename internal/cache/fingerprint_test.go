package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"vulnlab/internal/cache"
)

func TestFingerprintTracksManifestSet(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")

	before, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}

	again, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatal(err)
	}
	if again != before {
		t.Fatal("fingerprint changed without a manifest change")
	}

	writeManifest(t, root, "redis/CVE-2022-0543")
	after, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatal("fingerprint unchanged after adding a manifest")
	}

	if err := os.RemoveAll(filepath.Join(root, "redis")); err != nil {
		t.Fatal(err)
	}
	restored, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatal(err)
	}
	if restored != before {
		t.Fatal("fingerprint did not return to its original value")
	}
}

func TestFingerprintIgnoresManifestContent(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "nginx/CVE-2021-23017")

	before, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(root, "nginx", "CVE-2021-23017", "docker-compose.yml")
	if err := os.WriteFile(path, []byte("services:\n  web:\n    image: nginx:1.27\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	after, err := cache.Fingerprint(root)
	if err != nil {
		t.Fatal(err)
	}
	if after != before {
		t.Fatal("fingerprint keyed on content, want path set only")
	}
}
