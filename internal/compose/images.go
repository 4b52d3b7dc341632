package compose

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vulnlab/internal/manifest"
)

// ImageCheck reports which of an environment's images are absent locally.
// The check itself always succeeds; problems that prevent a real answer
// show up as a Warning with an empty Missing list, so callers can invoke
// it speculatively.
type ImageCheck struct {
	Missing []string `json:"missing"`
	Warning string   `json:"warning,omitempty"`
}

// CheckImages enumerates required images through the CLI (falling back to
// the manifest's own declarations when the CLI call fails) and inspects
// each locally. Any image whose inspection fails counts as missing.
func (d *Driver) CheckImages(ctx context.Context, id string) ImageCheck {
	dir, err := d.Resolve(id)
	if err != nil {
		return ImageCheck{
			Missing: []string{},
			Warning: fmt.Sprintf("unknown environment %q, check skipped", id),
		}
	}

	images := d.requiredImages(ctx, dir)
	if len(images) == 0 {
		return ImageCheck{Missing: []string{}}
	}
	if d.Inspector == nil {
		return ImageCheck{Missing: []string{}, Warning: "image inspection unavailable"}
	}

	missing := []string{}
	for _, img := range images {
		ok, err := d.Inspector.ImageExists(ctx, img)
		if err != nil {
			slog.Debug("image inspection failed", "image", img, "err", err)
			ok = false
		}
		if !ok {
			missing = append(missing, img)
		}
	}
	return ImageCheck{Missing: missing}
}

// requiredImages asks `config --images`, which resolves extends/overrides
// the way compose itself would, and falls back to the manifest text.
func (d *Driver) requiredImages(ctx context.Context, dir string) []string {
	stdout, _, err := d.run(ctx, dir, "config", "--images")
	if err == nil {
		var images []string
		for _, line := range strings.Split(stdout, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				images = append(images, line)
			}
		}
		if len(images) > 0 {
			return images
		}
	}

	path, ok := manifest.Locate(dir)
	if !ok {
		return nil
	}
	return manifest.Parse(ctx, path).Images
}
