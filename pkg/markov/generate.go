package markov

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
)

// maxSentenceOverrun caps how many words past the target a walk may emit while
// waiting for a sentence to end. A chain whose reachable phrases never end in a
// period would otherwise never terminate.
const maxSentenceOverrun = 4096

// generateOptions Is used by the generate functions to configure default options.
type generateOptions struct {
	targetWords int
	lineWidth   int
	startPhrase string
}

// GenerateOption is a function that configures generation parameters. It's used
// as a variadic argument in generation functions like Generate and GenerateStream.
type GenerateOption func(*generateOptions)

// WithTargetWords sets the minimum number of words to emit. If the corpus has
// sentences, generation continues past the target until the current sentence ends.
func WithTargetWords(n int) GenerateOption {
	return func(o *generateOptions) { o.targetWords = n }
}

// WithLineWidth sets the running character count at which a line break is
// inserted. Lines may exceed it by at most one word.
func WithLineWidth(n int) GenerateOption {
	return func(o *generateOptions) { o.lineWidth = n }
}

// WithStartPhrase starts the walk from a specific key phrase instead of a
// randomly selected one.
func WithStartPhrase(phrase string) GenerateOption {
	return func(o *generateOptions) { o.startPhrase = phrase }
}

func defaultGenerateOptions(opts []GenerateOption) *generateOptions {
	options := &generateOptions{
		targetWords: 500,
		lineWidth:   70,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.lineWidth < 1 {
		options.lineWidth = 1
	}
	return options
}

// Walker generates text by random walk over a Chain. Each Walker owns its
// random number generator, seeded explicitly so that a run can be reproduced.
// A Walker must not be used by more than one goroutine at a time; independent
// runs should use independent Walkers.
type Walker struct {
	seed   int64
	rng    *rand.Rand
	logger *slog.Logger
}

// NewWalker creates a Walker whose generator is seeded with seed.
func NewWalker(seed int64) *Walker {
	w := &Walker{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	w.SetSeed(seed)
	return w
}

// Seed returns the seed the generator was last reset with.
func (w *Walker) Seed() int64 { return w.seed }

// SetSeed resets the generator with a new seed.
func (w *Walker) SetSeed(seed int64) {
	w.seed = seed
	w.rng = rand.New(rand.NewPCG(uint64(seed), 0))
}

// SetLogger sets the logger for the Walker. By default, all logs are discarded.
func (w *Walker) SetLogger(logger *slog.Logger) {
	if logger != nil {
		w.logger = logger
	}
}

// Generate walks chain and returns the produced text, wrapped into lines of
// roughly the configured width. Every emitted word is followed by a space and
// line breaks are inserted after the word that reaches the width.
//
// ErrEmptyModel is returned if chain has no phrases.
func (w *Walker) Generate(chain *Chain, opts ...GenerateOption) (string, error) {
	var builder strings.Builder
	err := w.walk(chain, defaultGenerateOptions(opts), func(frag Fragment) bool {
		builder.WriteString(frag.Text)
		return true
	})
	if err != nil {
		return "", err
	}
	return builder.String(), nil
}

// startPhrase returns the configured start phrase after checking that the
// chain knows it. An empty result means a random start.
func startPhrase(chain *Chain, options *generateOptions) (string, error) {
	if options.startPhrase == "" {
		return "", nil
	}
	if _, ok := chain.next[options.startPhrase]; !ok {
		return "", fmt.Errorf("start phrase %q not found in chain", options.startPhrase)
	}
	return options.startPhrase, nil
}

// walk contains the main loop for generating text. emit receives each laid
// out piece of output and returns false to stop the walk early.
func (w *Walker) walk(chain *Chain, options *generateOptions, emit func(Fragment) bool) error {
	if chain == nil || chain.Len() == 0 {
		return ErrEmptyModel
	}

	flags := chain.Flags()
	pools := newSeedPools(chain.keys)

	seed, err := startPhrase(chain, options)
	if err != nil {
		return err
	}
	if seed == "" {
		if flags.ContainsCapitals {
			seed = pools.pick(w.rng, pools.capital)
		} else {
			seed = pools.pick(w.rng, pools.all)
		}
	}

	layout := &lineLayout{width: options.lineWidth}
	if !emit(layout.start(seed)) {
		return nil
	}

	// Without sentences any step may end the output; otherwise only a step
	// whose last word ends with a period may.
	endsOutput := func(increment string) bool {
		return !flags.ContainsPunctuation || strings.HasSuffix(lastWord(increment), ".")
	}

	// The step index starts at the chain length and advances by one per step,
	// whether the step emitted one word or a whole reseeded phrase. At least one
	// step is always taken.
	step := chain.order
	continueOutput := true
	for ; step < options.targetWords || continueOutput; step++ {
		var increment string
		choices := chain.next[seed]

		if len(choices) == 0 { // Dead end in chain
			pool := pools.all
			if flags.ContainsCapitals && flags.ContainsPunctuation {
				if strings.Contains(lastWord(seed), ".") {
					pool = pools.capital
				} else {
					pool = pools.lower
				}
			}
			w.logger.Debug("Dead end reached, reseeding",
				slog.String("last_phrase", seed),
				slog.Int("step", step),
			)
			seed = pools.pick(w.rng, pool)
			// None of the new phrase has been emitted yet.
			increment = seed
		} else {
			seed = chooseNextPhrase(w.rng, choices, chain.total[seed])
			increment = lastWord(seed)
		}

		if !emit(layout.place(increment)) {
			return nil
		}

		if step >= options.targetWords {
			if endsOutput(increment) {
				continueOutput = false
			} else if step-options.targetWords >= maxSentenceOverrun {
				w.logger.Warn("Sentence did not end within overrun limit, stopping",
					slog.Int("target_words", options.targetWords),
					slog.Int("overrun_limit", maxSentenceOverrun),
				)
				continueOutput = false
			}
		}
	}

	w.logger.Debug("Generation finished",
		slog.Int64("seed", w.seed),
		slog.Int("target_words", options.targetWords),
		slog.Int("steps", step-chain.order),
	)
	return nil
}

// chooseNextPhrase picks a successor with probability proportional to its
// frequency.
func chooseNextPhrase(rng *rand.Rand, choices []ChainPhrase, totalFreq int) string {
	randChoice := rng.IntN(totalFreq)
	for _, choice := range choices {
		randChoice -= choice.Freq
		if randChoice < 0 {
			return choice.Text
		}
	}
	return choices[len(choices)-1].Text
}

// seedPools partitions key phrases by whether they start a sentence.
// Drawing uniformly from a pool is equivalent to drawing from all keys and
// rejecting until the predicate holds, without the risk of looping forever.
type seedPools struct {
	all     []string
	capital []string
	lower   []string
}

func newSeedPools(keys []string) *seedPools {
	p := &seedPools{all: keys}
	for _, key := range keys {
		if startsWithCapital(key) {
			p.capital = append(p.capital, key)
		} else {
			p.lower = append(p.lower, key)
		}
	}
	return p
}

// pick draws uniformly from pool, falling back to every key if pool is empty.
func (p *seedPools) pick(rng *rand.Rand, pool []string) string {
	if len(pool) == 0 {
		pool = p.all
	}
	return pool[rng.IntN(len(pool))]
}

// lineLayout tracks the width of the line being written.
type lineLayout struct {
	width int
	col   int
}

// start lays out the opening phrase. Its trailing space is not counted and
// it never ends a line.
func (l *lineLayout) start(seed string) Fragment {
	l.col = len(seed)
	return Fragment{Text: seed + " "}
}

// place lays out a step's increment: followed by a space, and by a line break
// once the running width reaches the limit.
func (l *lineLayout) place(increment string) Fragment {
	l.col += len(increment) + 1
	if l.col >= l.width {
		l.col = 0
		return Fragment{Text: increment + " \n", LineBreak: true}
	}
	return Fragment{Text: increment + " "}
}
