package registry

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vulnlab"
	"vulnlab/internal/manifest"
	"vulnlab/internal/scan"
)

// maxExploitContent caps how much of an exploit file the detail view
// embeds.
const maxExploitContent = 10000

// usageScanLines is how far into an exploit file the usage hint search
// looks.
const usageScanLines = 20

// ExploitFile is one exploit artifact with enough of its content for a
// reader to judge it without opening the file.
type ExploitFile struct {
	Name    string `json:"filename"`
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Lines   int    `json:"lines"`
	Content string `json:"content"`
	Usage   string `json:"usage,omitempty"`
}

// Detail is the full view of one environment: its registry record plus
// material read straight from its directory.
type Detail struct {
	vulnlab.Environment
	Compose    string        `json:"compose"`
	ImageFiles []string      `json:"image_files"`
	Exploits   []ExploitFile `json:"exploits"`
}

// Get assembles the detail view. The record comes from the snapshot when
// cached; manifest text and exploit artifacts are always read fresh so
// the view reflects the directory as it is now.
func (r *Registry) Get(ctx context.Context, id string) (Detail, error) {
	ctx, span := r.tracer.Start(ctx, "registry.get", trace.WithAttributes(
		attribute.String("environment", id),
	))
	defer span.End()

	dir, err := r.lifecycle.Resolve(id)
	if err != nil {
		spanFail(span, err)
		return Detail{}, err
	}

	detail := Detail{
		ImageFiles: scan.ImageFiles(dir),
		Exploits:   readExploits(dir),
	}

	if snap, listErr := r.List(ctx, false); listErr == nil {
		if i := snap.Find(id); i >= 0 {
			detail.Environment = snap[i]
		}
	}
	if detail.Environment.ID == "" {
		category, label := vulnlab.SplitID(id)
		detail.Environment = vulnlab.Environment{
			ID:       id,
			Category: category,
			Label:    label,
			Status:   vulnlab.StatusUnknown,
		}
	}

	if path, ok := manifest.Locate(dir); ok {
		if data, err := os.ReadFile(path); err == nil {
			detail.Compose = string(data)
		}
	}
	return detail, nil
}

// readExploits loads exploit artifacts. Unreadable files are skipped;
// partial listings beat no listing.
func readExploits(dir string) []ExploitFile {
	out := []ExploitFile{}
	for _, rel := range scan.ExploitFiles(dir) {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil || len(data) == 0 {
			continue
		}
		content := string(data)
		lines := strings.Split(content, "\n")

		f := ExploitFile{
			Name:    filepath.Base(rel),
			Path:    rel,
			Size:    len(content),
			Lines:   len(lines),
			Content: content,
			Usage:   usageLine(lines),
		}
		if len(f.Content) > maxExploitContent {
			f.Content = f.Content[:maxExploitContent]
		}
		out = append(out, f)
	}
	return out
}

// usageLine pulls a usage or example hint from an exploit's leading
// comments, if one exists.
func usageLine(lines []string) string {
	n := len(lines)
	if n > usageScanLines {
		n = usageScanLines
	}
	for _, line := range lines[:n] {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "usage:") || strings.Contains(lower, "example:") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
