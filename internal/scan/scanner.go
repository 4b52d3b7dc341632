// Package scan walks a root tree, finds every compose manifest and builds
// the registry snapshot.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"vulnlab"
	"vulnlab/internal/manifest"
)

// ErrRootNotFound means the scan root does not exist. It is fatal to the
// scan attempt and is not retried here.
var ErrRootNotFound = errors.New("scan root not found")

// progressEvery is how many finished environments pass between progress
// callbacks. Vulhub-sized trees hold several hundred manifests.
const progressEvery = 50

// ImageInspector answers whether an image reference is available locally.
type ImageInspector interface {
	ImageExists(ctx context.Context, ref string) (bool, error)
}

// Scanner produces registry snapshots.
//
// Per-environment work (manifest parsing, filesystem probes, image
// inspection) is independent, so it runs on a bounded worker pool; image
// inspection dominates the cost and must not fan out unboundedly.
type Scanner struct {
	Root string
	// Inspector may be nil; environments are then reported without local
	// images.
	Inspector ImageInspector
	// Workers bounds pool size; values below 1 mean 1.
	Workers int
	// OnProgress, when set, receives (done, total) periodically and once
	// at completion.
	OnProgress func(done, total int)
}

// Scan enumerates every manifest under Root and returns the snapshot
// sorted by identifier. A scan runs to completion before anything is
// published; cancelling ctx abandons the whole run.
func (s *Scanner) Scan(ctx context.Context) (vulnlab.Snapshot, error) {
	manifests, err := Manifests(s.Root)
	if err != nil {
		return nil, err
	}

	total := len(manifests)
	snap := make(vulnlab.Snapshot, total)

	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > total && total > 0 {
		workers = total
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	done := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				snap[i] = s.examine(ctx, manifests[i])

				mu.Lock()
				done++
				if s.OnProgress != nil && (done%progressEvery == 0 || done == total) {
					s.OnProgress(done, total)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for i := range manifests {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	snap.Sort()
	return snap, nil
}

// examine builds the record for one manifest (given root-relative).
func (s *Scanner) examine(ctx context.Context, relManifest string) vulnlab.Environment {
	id := filepath.ToSlash(filepath.Dir(relManifest))
	dir := filepath.Join(s.Root, filepath.Dir(relManifest))
	category, label := vulnlab.SplitID(id)

	res := manifest.Parse(ctx, filepath.Join(s.Root, relManifest))

	env := vulnlab.Environment{
		ID:          id,
		Category:    category,
		Label:       label,
		Services:    res.Services,
		Ports:       res.Ports,
		Status:      vulnlab.StatusUnknown,
		HasExploit:  hasExploitArtifacts(dir),
		HasImages:   len(imageFiles(dir)) > 0,
		HasReadme:   fileExists(filepath.Join(dir, "README.md")),
		HasReadmeZh: hasLocalizedReadme(dir),
	}
	env.HasLocalImages = s.allImagesLocal(ctx, res.Images)
	return env
}

// allImagesLocal reports whether every referenced image resolves locally.
// No inspector, no declared images, or any inspection failure all count as
// not-local; the flag only ever promises availability, never absence.
func (s *Scanner) allImagesLocal(ctx context.Context, images []string) bool {
	if s.Inspector == nil || len(images) == 0 {
		return false
	}
	for _, img := range images {
		ok, err := s.Inspector.ImageExists(ctx, img)
		if err != nil {
			slog.Debug("image inspection failed", "image", img, "err", err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// Manifests returns the root-relative paths of every manifest file under
// root, sorted, one per directory. Directories directly at the root are
// skipped: an environment needs at least one path segment to name it. A
// directory carrying several recognized filenames yields only the one
// manifest.Locate would resolve, so scan and lifecycle act on the same
// file and no identifier appears twice.
func Manifests(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}

	byDir := map[string]string{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees degrade to absent entries.
			slog.Debug("scan walk error", "path", path, "err", err)
			return nil
		}
		if d.IsDir() || !manifest.IsManifestName(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(rel)
		if dir == "." {
			return nil
		}
		if cur, ok := byDir[dir]; !ok || namePriority(d.Name()) < namePriority(cur) {
			byDir[dir] = d.Name()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	out := make([]string, 0, len(byDir))
	for dir, name := range byDir {
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// namePriority is a filename's index in manifest.Names lookup order.
func namePriority(name string) int {
	for i, n := range manifest.Names {
		if n == name {
			return i
		}
	}
	return len(manifest.Names)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
