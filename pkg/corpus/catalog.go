package corpus

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnknownStory is returned when a story name is not in the catalog.
var ErrUnknownStory = errors.New("unknown story")

// ConsoleName is the story name that selects interactive console input.
const ConsoleName = "-"

// Entry ties a story name to the file holding its text.
type Entry struct {
	Name string `json:"name"`
	File string `json:"file"`
}

// Catalog is an ordered lookup table from story names to corpus files.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// NewCatalog builds a catalog from entries, keeping their order. Later entries
// with a duplicate name replace earlier ones in place.
func NewCatalog(entries ...Entry) *Catalog {
	c := &Catalog{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if i, ok := c.index[e.Name]; ok {
			c.entries[i] = e
			continue
		}
		c.index[e.Name] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// DefaultCatalog returns the eight public-domain stories the generator ships
// support for, in their canonical order.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Entry{"DavidCopperfield", "david.txt"},
		Entry{"TheCountOfMonteCristo", "monte.txt"},
		Entry{"ThePictureOfDorianGray", "dorian.txt"},
		Entry{"ATaleOfTwoCities", "cities.txt"},
		Entry{"Metamorphosis", "metamorphosis.txt"},
		Entry{"HeartOfDarkness", "darkness.txt"},
		Entry{"AliceInWonderland", "alice.txt"},
		Entry{"GrimmsFairyTales", "fairy.txt"},
	)
}

// Names lists the story names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of the catalog entries.
func (c *Catalog) Entries() []Entry {
	return append([]Entry(nil), c.entries...)
}

// File returns the file name registered for a story.
func (c *Catalog) File(name string) (string, error) {
	i, ok := c.index[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStory, name)
	}
	return c.entries[i].File, nil
}

// Path returns the location of a story's file inside dir.
func (c *Catalog) Path(dir, name string) (string, error) {
	file, err := c.File(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, file), nil
}
