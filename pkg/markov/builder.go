package markov

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Builder turns a token stream into a Chain of a fixed order.
type Builder struct {
	order     int
	tokenizer Tokenizer
	logger    *slog.Logger
}

// NewBuilder creates a Builder producing chains whose phrases are order tokens
// long. A nil tokenizer selects NewDefaultTokenizer.
func NewBuilder(order int, tokenizer Tokenizer) (*Builder, error) {
	if order < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, order)
	}
	if tokenizer == nil {
		tokenizer = NewDefaultTokenizer()
	}
	return &Builder{
		order:     order,
		tokenizer: tokenizer,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Builder. By default, all logs are discarded.
func (b *Builder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Order returns the chain length used by the Builder.
func (b *Builder) Order() int { return b.order }

// Build tokenizes data and builds a chain from it. See BuildFromStream.
func (b *Builder) Build(data io.Reader, kind SourceKind) (*Chain, error) {
	return b.BuildFromStream(b.tokenizer.NewStream(data), kind)
}

// BuildFromStream reads tokens until the stream is exhausted, or, for an
// interactive source, until EndOfInputSentinel is read. A bounded source treats
// the sentinel as an ordinary word.
//
// Underscores are removed from every token, so emphasis markers in the source
// text never affect phrase matching. ErrEmptyInput is returned if the stream
// ends before the first Order tokens have been read.
func (b *Builder) BuildFromStream(stream StreamTokenizer, kind SourceKind) (*Chain, error) {
	chain := newChain(b.order)
	window := make([]string, 0, b.order)

	for len(window) < b.order {
		word, done, err := b.nextWord(stream, kind)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, fmt.Errorf("%w: read %d of %d tokens", ErrEmptyInput, len(window), b.order)
		}
		window = append(window, word)
	}

	var tokenCount = int64(len(window))
	for {
		key := strings.Join(window, " ")

		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("tokenizer error: %w", err)
		}

		chain.observe(key)

		if kind == SourceInteractive && token.Text == EndOfInputSentinel {
			break
		}
		word := stripEmphasis(token.Text)
		if word == "" {
			continue
		}
		tokenCount++

		window = append(window[1:], word)
		chain.add(key, strings.Join(window, " "), 1)
	}

	b.logger.Info("Chain built",
		slog.Int("chain_length", b.order),
		slog.String("source_kind", kind.String()),
		slog.Int64("tokens_read", tokenCount),
		slog.Int("phrases", chain.Len()),
		slog.Bool("contains_capitals", chain.flags.ContainsCapitals),
		slog.Bool("contains_punctuation", chain.flags.ContainsPunctuation),
	)

	return chain, nil
}

// nextWord returns the next non-empty word used to fill the initial window.
// done reports the end of the source.
func (b *Builder) nextWord(stream StreamTokenizer, kind SourceKind) (string, bool, error) {
	for {
		token, err := stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", true, nil
			}
			return "", false, fmt.Errorf("tokenizer error: %w", err)
		}
		if kind == SourceInteractive && token.Text == EndOfInputSentinel {
			return "", true, nil
		}
		if word := stripEmphasis(token.Text); word != "" {
			return word, false, nil
		}
	}
}

// stripEmphasis removes underscore emphasis markers such as _italic_.
func stripEmphasis(word string) string {
	return strings.ReplaceAll(word, "_", "")
}
