// Package imagecatalog holds the filenames a haiku may reference and
// corrects model-chosen names against them.
package imagecatalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// HaikuImageCount is how many images every haiku carries.
const HaikuImageCount = 3

// DefaultNames is the built-in catalog, in presentation order.
var DefaultNames = []string{
	"Osaka_Castle_Turret_Stone_Wall_Pine_Trees_Daytime.jpg",
	"Tokyo_Skyline_Night_Tokyo_Tower_Mount_Fuji_View.jpg",
	"Itsukushima_Shrine_Miyajima_Floating_Torii_Gate_Sunset_Long_Exposure.jpg",
	"Takachiho_Gorge_Waterfall_River_Lush_Greenery_Japan.jpg",
	"Bonsai_Tree_Potted_Japanese_Art_Green_Foliage.jpeg",
	"Shirakawa-go_Gassho-zukuri_Thatched_Roof_Village_Aerial_View.jpg",
	"Ginkaku-ji_Silver_Pavilion_Kyoto_Japanese_Garden_Pond_Reflection.jpg",
	"Senso-ji_Temple_Asakusa_Cherry_Blossoms_Kimono_Umbrella.jpg",
	"Cherry_Blossoms_Sakura_Night_View_City_Lights_Japan.jpg",
	"Mount_Fuji_Lake_Reflection_Cherry_Blossoms_Sakura_Spring.jpg",
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// Catalog is safe for concurrent use; Replace swaps the whole list.
type Catalog struct {
	mu    sync.RWMutex
	names []string
	index map[string]struct{}
}

func New(names []string) *Catalog {
	c := &Catalog{}
	c.Replace(names)
	return c
}

// Default returns a catalog seeded with DefaultNames.
func Default() *Catalog {
	return New(DefaultNames)
}

// Replace swaps the catalog contents. Duplicates and blanks are dropped.
func (c *Catalog) Replace(names []string) {
	cleaned := make([]string, 0, len(names))
	index := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = struct{}{}
		cleaned = append(cleaned, name)
	}

	c.mu.Lock()
	c.names = cleaned
	c.index = index
	c.mu.Unlock()
}

// Names returns a copy of the catalog in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

func (c *Catalog) Contains(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[name]
	return ok
}

// Correct keeps the valid, distinct names from chosen in order and fills
// up to HaikuImageCount with unused catalog names in catalog order.
// The result is shorter only when the catalog itself is too small.
func (c *Catalog) Correct(chosen []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, HaikuImageCount)
	used := make(map[string]struct{}, HaikuImageCount)
	for _, name := range chosen {
		if len(out) == HaikuImageCount {
			break
		}
		name = strings.TrimSpace(name)
		if _, ok := c.index[name]; !ok {
			continue
		}
		if _, dup := used[name]; dup {
			continue
		}
		used[name] = struct{}{}
		out = append(out, name)
	}

	for _, name := range c.names {
		if len(out) == HaikuImageCount {
			break
		}
		if _, dup := used[name]; dup {
			continue
		}
		used[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// LoadDir lists image files directly inside dir, sorted by name.
func LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !IsImage(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}
