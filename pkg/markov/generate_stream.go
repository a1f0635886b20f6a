package markov

import (
	"context"
	"log/slog"
)

// Fragment is one piece of streamed output: the opening phrase, or a step's
// newly emitted word (a whole phrase after a reseed), with its trailing space
// and a line break if the step filled the current line.
type Fragment struct {
	Text      string
	LineBreak bool
}

// GenerateStream walks chain like Generate and returns a read-only channel of
// Fragments. Concatenating every fragment reproduces Generate's output for the
// same seed and options. The channel will be closed once generation is complete
// or the context is cancelled.
//
// ErrEmptyModel is returned immediately if chain has no phrases. The Walker must
// not be used again until the channel is closed.
func (w *Walker) GenerateStream(ctx context.Context, chain *Chain, opts ...GenerateOption) (<-chan Fragment, error) {
	if chain == nil || chain.Len() == 0 {
		return nil, ErrEmptyModel
	}
	options := defaultGenerateOptions(opts)
	if _, err := startPhrase(chain, options); err != nil {
		return nil, err
	}

	fragChan := make(chan Fragment)

	go func() {
		defer close(fragChan)

		err := w.walk(chain, options, func(frag Fragment) bool {
			select {
			case <-ctx.Done():
				w.logger.DebugContext(ctx, "Generation stream cancelled by context")
				return false
			case fragChan <- frag:
				return true
			}
		})
		if err != nil {
			w.logger.ErrorContext(ctx, "Generation stream failed", slog.Any("error", err))
		}
	}()

	return fragChan, nil
}
