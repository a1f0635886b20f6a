package markov

import (
	"io"
)

// EndOfInputSentinel is the literal token that ends an interactive source.
const EndOfInputSentinel = `\end`

// SourceKind selects which termination rule a Builder applies to a stream.
type SourceKind int

const (
	// SourceBounded is a finite source read until exhausted. The sentinel is an
	// ordinary word for bounded sources.
	SourceBounded SourceKind = iota
	// SourceInteractive is an unbounded source read until EndOfInputSentinel.
	SourceInteractive
)

func (k SourceKind) String() string {
	switch k {
	case SourceBounded:
		return "bounded"
	case SourceInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Token represents a single whitespace-delimited unit of text.
type Token struct {
	Text string
}

// Tokenizer is an interface that defines the contract for splitting input text
// into tokens. This allows the chain building logic to be independent of the
// specific tokenization strategy.
type Tokenizer interface {
	// NewStream returns a stateful StreamTokenizer for processing an io.Reader.
	NewStream(io.Reader) StreamTokenizer
}

// StreamTokenizer is an interface for a stateful tokenizer that processes a
// stream of data, returning one token at a time.
type StreamTokenizer interface {
	// Next returns the next token from the stream. It returns io.EOF as the
	// error when the stream is fully consumed.
	Next() (*Token, error)
}

// SliceStream is a StreamTokenizer over an in-memory list of words.
type SliceStream struct {
	words []string
}

// NewSliceStream returns a stream yielding words in order.
func NewSliceStream(words []string) *SliceStream {
	return &SliceStream{words: words}
}

// Next implements StreamTokenizer.
func (s *SliceStream) Next() (*Token, error) {
	if len(s.words) == 0 {
		return nil, io.EOF
	}
	word := s.words[0]
	s.words = s.words[1:]
	return &Token{Text: word}, nil
}
