// Package util - input discovery for batch detection.
package util

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ImageExtensions lists the file extensions treated as images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageFile represents an image file found on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the number trailing the file name ("frame-12.jpg" is 12), or
	// -1 when the name carries none.
	Frame int
}

// IsImageFile reports whether path has a supported image extension.
func IsImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImageFiles returns the image files directly inside dir.
//
// Numbered files are ordered by frame number, so "frame-2.jpg" precedes
// "frame-10.jpg". Everything else follows in name order.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The image files, sorted.
//   - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}
		files = append(files, ImageFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: frameNumber(entry.Name()),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Frame >= 0 && b.Frame >= 0 && a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		if (a.Frame >= 0) != (b.Frame >= 0) {
			return a.Frame >= 0
		}
		return a.Path < b.Path
	})

	return files, nil
}

// OutputPath maps an input image to its annotated counterpart in outDir,
// e.g. "in/dog.jpg" becomes "out/dog_detected.jpg".
func OutputPath(outDir, input, suffix string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	return filepath.Join(outDir, strings.TrimSuffix(base, ext)+suffix+ext)
}

func frameNumber(name string) int {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := len(stem)
	for i > 0 && stem[i-1] >= '0' && stem[i-1] <= '9' {
		i--
	}
	if i == len(stem) {
		return -1
	}
	n, err := strconv.Atoi(stem[i:])
	if err != nil {
		return -1
	}
	return n
}
