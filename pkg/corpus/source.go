package corpus

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/storychain/pkg/markov"
)

// ErrSourceUnavailable is returned when a source cannot be opened for reading.
var ErrSourceUnavailable = errors.New("source unavailable")

// ConsolePrompt is printed before interactive input is read.
const ConsolePrompt = `Enter your sample text in the console, followed by a space and "` + markov.EndOfInputSentinel + `"!`

// Source is a named stream of text that a chain can be built from.
type Source interface {
	// Name identifies the source in logs and cache keys.
	Name() string
	// Kind tells the builder whether the end-of-input sentinel applies.
	Kind() markov.SourceKind
	// Open returns a fresh reader over the source text.
	Open() (io.ReadCloser, error)
}

// FileSource reads a bounded text file.
type FileSource struct {
	name string
	path string
}

// NewFileSource returns a bounded source reading path. The source is named
// after the file unless WithName is used.
func NewFileSource(path string) *FileSource {
	return &FileSource{
		name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		path: path,
	}
}

// WithName returns a copy of the source carrying a different name.
func (s *FileSource) WithName(name string) *FileSource {
	return &FileSource{name: name, path: s.path}
}

func (s *FileSource) Name() string            { return s.name }
func (s *FileSource) Kind() markov.SourceKind { return markov.SourceBounded }
func (s *FileSource) Path() string            { return s.path }

// Open opens the file. Any failure is wrapped with ErrSourceUnavailable.
func (s *FileSource) Open() (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, s.path, err)
	}
	return f, nil
}

// ConsoleSource reads interactive text until the end-of-input sentinel.
type ConsoleSource struct {
	in     io.Reader
	prompt io.Writer
}

// NewConsoleSource returns an interactive source reading from in. The prompt
// is written to prompt each time the source is opened; a nil prompt writer
// suppresses it.
func NewConsoleSource(in io.Reader, prompt io.Writer) *ConsoleSource {
	return &ConsoleSource{in: in, prompt: prompt}
}

func (s *ConsoleSource) Name() string            { return "console" }
func (s *ConsoleSource) Kind() markov.SourceKind { return markov.SourceInteractive }

// Open prints the prompt and hands out the console stream. Closing the
// returned reader does not close the underlying input.
func (s *ConsoleSource) Open() (io.ReadCloser, error) {
	if s.in == nil {
		return nil, fmt.Errorf("%w: no console input", ErrSourceUnavailable)
	}
	if s.prompt != nil {
		if _, err := fmt.Fprintln(s.prompt, ConsolePrompt); err != nil {
			return nil, fmt.Errorf("could not write prompt: %w", err)
		}
	}
	return io.NopCloser(s.in), nil
}

// Resolve maps a story name to a file source inside dir. The console name
// resolves to a nil Source and nil error; the caller supplies its own console.
func Resolve(catalog *Catalog, dir, name string) (Source, error) {
	if name == ConsoleName {
		return nil, nil
	}
	path, err := catalog.Path(dir, name)
	if err != nil {
		return nil, err
	}
	return NewFileSource(path).WithName(name), nil
}
