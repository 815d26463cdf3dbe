package models

import (
	"bufio"
	"errors"
	"os"
	"strings"

	"github.com/nvr-ai/go-detect/models/model"
)

// UnknownClass is the name reported for class ids outside the catalog.
const UnknownClass = "unknown"

// Catalog is the ordered list of class names a model was trained on. The
// class id emitted by the decoder is an index into it. A Catalog is immutable
// once loaded and may be shared between goroutines.
type Catalog struct {
	names     []string
	nameToIdx map[string]int
}

// NewCatalog builds a catalog from class names in id order.
func NewCatalog(names []string) *Catalog {
	c := &Catalog{
		names:     append([]string(nil), names...),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, n := range c.names {
		if _, ok := c.nameToIdx[n]; !ok {
			c.nameToIdx[n] = i
		}
	}
	return c
}

// LoadCatalog reads a newline-delimited class list, one name per line.
//
// Lines are trimmed of surrounding whitespace. Trailing blank lines are
// dropped; blank lines between names are kept as empty names so that the
// ids of the following classes do not shift.
//
// Arguments:
//   - path: Path to the class list file.
//
// Returns:
//   - *Catalog: The loaded catalog.
//   - error: A *model.CatalogReadError if the file cannot be read or is empty.
func LoadCatalog(path string) (*Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &model.CatalogReadError{Path: path, Err: err}
	}
	defer file.Close()

	var names []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		names = append(names, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, &model.CatalogReadError{Path: path, Err: err}
	}

	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	if len(names) == 0 {
		return nil, &model.CatalogReadError{Path: path, Err: errors.New("no class names")}
	}

	return NewCatalog(names), nil
}

// Len returns the number of classes.
func (c *Catalog) Len() int { return len(c.names) }

// Name returns the class name for an id, or UnknownClass when out of range.
func (c *Catalog) Name(id int) string {
	if id < 0 || id >= len(c.names) || c.names[id] == "" {
		return UnknownClass
	}
	return c.names[id]
}

// Index returns the id of a class name.
func (c *Catalog) Index(name string) (int, bool) {
	idx, ok := c.nameToIdx[name]
	return idx, ok
}

// Names returns a copy of the class names in id order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// COCOCatalog returns the 80 COCO classes in darknet order (no background).
func COCOCatalog() *Catalog {
	return NewCatalog(cocoNames)
}

var cocoNames = []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "sofa", "pottedplant", "bed", "diningtable", "toilet", "tvmonitor", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
