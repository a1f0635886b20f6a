package markov

import (
	"bufio"
	"io"
	"regexp"
)

// maxLineSize bounds a single input line; novels in plain text often carry
// whole paragraphs on one line.
const maxLineSize = 1 << 20

// DefaultTokenizer is a default implementation of the Tokenizer interface.
// It splits each input line into tokens with a regular expression, by default
// on whitespace, and leaves the tokens otherwise untouched so punctuation stays
// attached to its word.
type DefaultTokenizer struct {
	splitRegex *regexp.Regexp
}

// Option Is a function that configures a DefaultTokenizer.
type Option func(*DefaultTokenizer)

// WithSplitRegex sets the regex string used to find tokens in a line.
// Default: `\S+`
func WithSplitRegex(splitRegex string) Option {
	return func(t *DefaultTokenizer) {
		t.splitRegex = regexp.MustCompile(splitRegex)
	}
}

// NewDefaultTokenizer creates a new tokenizer with default settings, which can be
// overridden by providing one or more Option functions.
func NewDefaultTokenizer(opts ...Option) *DefaultTokenizer {
	t := &DefaultTokenizer{
		// Any run of non-whitespace is a word, punctuation included.
		splitRegex: regexp.MustCompile(`\S+`),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewStream Returns the stream processor.
func (t *DefaultTokenizer) NewStream(r io.Reader) StreamTokenizer {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &DefaultStreamTokenizer{
		scanner:    scanner,
		buffer:     []string{},
		splitRegex: t.splitRegex,
	}
}

// DefaultStreamTokenizer is the default implementation of the StreamTokenizer interface.
// It uses a bufio.Scanner and a regular expression to read and tokenize a stream
// line by line, so an interactive source is consumed as the user types.
type DefaultStreamTokenizer struct {
	scanner    *bufio.Scanner
	buffer     []string
	splitRegex *regexp.Regexp
}

// Next returns the next token from the stream. It returns a Token and a nil error on
// success. When the stream is exhausted, it returns a nil Token and io.EOF.
// Any other error indicates a problem reading from the underlying stream.
func (s *DefaultStreamTokenizer) Next() (*Token, error) {
	for len(s.buffer) == 0 { // Loop until we have tokens
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		s.buffer = s.splitRegex.FindAllString(s.scanner.Text(), -1)
	}

	word := s.buffer[0]
	s.buffer = s.buffer[1:] // Consume the token

	return &Token{Text: word}, nil
}
