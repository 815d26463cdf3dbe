package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/models/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
	}{
		{"plain", "person\nbicycle\ncar\n", []string{"person", "bicycle", "car"}},
		{"no trailing newline", "person\nbicycle", []string{"person", "bicycle"}},
		{"whitespace trimmed", "  person \r\n\tdog\t\r\n", []string{"person", "dog"}},
		{"trailing blank lines dropped", "person\n\n\n", []string{"person"}},
		{"inner blank line keeps ids", "person\n\ncar\n", []string{"person", "", "car"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadCatalog(writeFile(t, "classes.txt", tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.Names())
			assert.Equal(t, len(tt.expected), c.Len())
		})
	}
}

func TestLoadCatalog_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.txt") }},
		{"empty file", func(t *testing.T) string { return writeFile(t, "empty.txt", "") }},
		{"only blank lines", func(t *testing.T) string { return writeFile(t, "blank.txt", "\n  \n\n") }},
		{"directory", func(t *testing.T) string { return t.TempDir() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadCatalog(tt.path(t))
			require.Error(t, err)
			assert.Nil(t, c)

			var readErr *model.CatalogReadError
			assert.True(t, errors.As(err, &readErr))
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := NewCatalog([]string{"person", "", "car"})

	assert.Equal(t, "person", c.Name(0))
	assert.Equal(t, UnknownClass, c.Name(1))
	assert.Equal(t, "car", c.Name(2))
	assert.Equal(t, UnknownClass, c.Name(3))
	assert.Equal(t, UnknownClass, c.Name(-1))

	idx, ok := c.Index("car")
	assert.True(t, ok)
	assert.Equal(t, 2, idx)

	_, ok = c.Index("boat")
	assert.False(t, ok)
}

func TestCOCOCatalog(t *testing.T) {
	c := COCOCatalog()
	assert.Equal(t, 80, c.Len())
	assert.Equal(t, "person", c.Name(0))
	assert.Equal(t, "toothbrush", c.Name(79))
}

func TestNewModel(t *testing.T) {
	for _, name := range Names() {
		t.Run(string(name), func(t *testing.T) {
			m, err := NewModel(model.NewModelArgs{Name: name})
			require.NoError(t, err)
			assert.Equal(t, name, m.Options().Name)
			assert.Equal(t, model.ModelFamilyYOLO, m.Options().Family)
		})
	}

	_, err := NewModel(model.NewModelArgs{Name: "dfine"})
	assert.Error(t, err)
}
