package imagecatalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCorrect(t *testing.T) {
	c := New([]string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})

	tests := []struct {
		name   string
		chosen []string
		want   []string
	}{
		{name: "should keep three valid names", chosen: []string{"d.jpg", "b.jpg", "a.jpg"}, want: []string{"d.jpg", "b.jpg", "a.jpg"}},
		{name: "should drop unknown names and fill in catalog order", chosen: []string{"nope.jpg", "c.jpg"}, want: []string{"c.jpg", "a.jpg", "b.jpg"}},
		{name: "should drop duplicates", chosen: []string{"b.jpg", "b.jpg", "b.jpg"}, want: []string{"b.jpg", "a.jpg", "c.jpg"}},
		{name: "should cap at three", chosen: []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}, want: []string{"a.jpg", "b.jpg", "c.jpg"}},
		{name: "should fill from empty", chosen: nil, want: []string{"a.jpg", "b.jpg", "c.jpg"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Correct(tt.chosen))
		})
	}

	t.Run("should return fewer when the catalog is small", func(t *testing.T) {
		small := New([]string{"only.jpg"})
		assert.Equal(t, []string{"only.jpg"}, small.Correct([]string{"x.jpg"}))
	})
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	assert.Equal(t, 10, c.Len())
	assert.True(t, c.Contains("Bonsai_Tree_Potted_Japanese_Art_Green_Foliage.jpeg"))
	assert.False(t, c.Contains("bonsai.jpg"))

	names := c.Names()
	names[0] = "mutated"
	assert.Equal(t, DefaultNames[0], c.Names()[0])
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.JPG", "notes.txt", ".hidden.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	names, err := LoadDir(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.png"}, names)

	_, err = LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "first.jpg"), nil, 0644))

	catalog := Default()
	reloaded := make(chan []string, 4)
	emptied := make(chan struct{}, 4)
	w, err := NewWatcher(WatcherConfig{
		Dir:                dir,
		Catalog:            catalog,
		StabilityThreshold: 20 * time.Millisecond,
		OnReload:           func(names []string) { reloaded <- names },
		OnEmpty:            func() { emptied <- struct{}{} },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	t.Run("should load the directory on start", func(t *testing.T) {
		assert.Equal(t, []string{"first.jpg"}, catalog.Names())
		<-reloaded
	})

	t.Run("should pick up new images", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "second.jpg"), nil, 0644))

		select {
		case names := <-reloaded:
			assert.Equal(t, []string{"first.jpg", "second.jpg"}, names)
		case <-time.After(2 * time.Second):
			t.Fatal("catalog was not reloaded")
		}
		assert.True(t, catalog.Contains("second.jpg"))
	})
	t.Run("should keep the catalog and warn once when the directory empties", func(t *testing.T) {
		require.NoError(t, os.Remove(filepath.Join(dir, "first.jpg")))
		require.NoError(t, os.Remove(filepath.Join(dir, "second.jpg")))

		select {
		case <-emptied:
		case <-time.After(2 * time.Second):
			t.Fatal("emptying was not reported")
		}
		assert.Equal(t, []string{"first.jpg", "second.jpg"}, catalog.Names())
		for len(reloaded) > 0 {
			<-reloaded
		}

		require.NoError(t, os.WriteFile(filepath.Join(dir, "third.jpg"), nil, 0644))
		select {
		case names := <-reloaded:
			assert.Equal(t, []string{"third.jpg"}, names)
		case <-time.After(2 * time.Second):
			t.Fatal("catalog was not reloaded")
		}
		assert.Empty(t, emptied)

		require.NoError(t, os.Remove(filepath.Join(dir, "third.jpg")))
		select {
		case <-emptied:
		case <-time.After(2 * time.Second):
			t.Fatal("second emptying was not reported")
		}
		assert.Equal(t, []string{"third.jpg"}, catalog.Names())
	})
}
