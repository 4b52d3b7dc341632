package fake

import (
	"context"
	"sync"
)

// ImageInspector is an in-memory scan.ImageInspector: an image exists when
// it was named at construction or added later.
type ImageInspector struct {
	CallRecorder
	mu     sync.Mutex
	images map[string]bool

	ImageExistsErr func(ctx context.Context, ref string) error
}

// NewImageInspector creates an inspector with the given images present.
func NewImageInspector(present ...string) *ImageInspector {
	images := make(map[string]bool, len(present))
	for _, ref := range present {
		images[ref] = true
	}
	return &ImageInspector{images: images}
}

// Add marks an image as locally present.
func (i *ImageInspector) Add(ref string) {
	i.mu.Lock()
	i.images[ref] = true
	i.mu.Unlock()
}

func (i *ImageInspector) ImageExists(ctx context.Context, ref string) (bool, error) {
	i.record("ImageExists", ref)
	if i.ImageExistsErr != nil {
		if err := i.ImageExistsErr(ctx, ref); err != nil {
			return false, err
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.images[ref], nil
}
