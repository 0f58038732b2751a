package imaging

import (
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"
)

// Cache loads sheet images from disk and keeps the decoded rasters in memory.
//
// Batches commonly touch a sheet more than once (manual resubmission after a
// template fix); the cache avoids re-reading and re-decoding the source file
// on those paths. A Load failure is the pipeline's "source image cannot be
// located" case and fails the sheet.
//
// Cache is safe for concurrent use by all sheet pipelines. Entries stay until
// Evict or Clear; a process handling many batches should Clear between
// batches to bound memory.
type Cache struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

// NewCache returns an empty, ready-to-use cache.
func NewCache() *Cache {
	return &Cache{images: make(map[string]image.Image)}
}

// Load returns the decoded image for path, reading from disk on first use.
// Supported formats are PNG, JPEG and GIF; PDF pages must be rasterized
// upstream before they reach the core.
func (c *Cache) Load(path string) (image.Image, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sheet image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode sheet image: %w", err)
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Evict drops one cached image.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Clear drops all cached images.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]image.Image)
	c.mu.Unlock()
}
