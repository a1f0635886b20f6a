package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/CTAG07/storychain/pkg/corpus"
	"github.com/CTAG07/storychain/pkg/markov"
	"github.com/natefinch/atomic"
	"golang.org/x/sync/errgroup"
)

// storyResult is the outcome of generating one story.
type storyResult struct {
	name string
	seed int64
	text string
	err  error
}

// Batch generates one story per configured source.
type Batch struct {
	cfg         StoryConfig
	catalog     *corpus.Catalog
	store       *markov.Store
	cacheModels bool
	exportDir   string
	console     corpus.Source
	logger      *slog.Logger
	now         func() time.Time
}

// NewBatch creates a batch for the given configuration. store may be nil, in
// which case every chain is built from its source.
func NewBatch(cfg Config, catalog *corpus.Catalog, store *markov.Store, console corpus.Source, logger *slog.Logger) *Batch {
	return &Batch{
		cfg:         *cfg.Story,
		catalog:     catalog,
		store:       store,
		cacheModels: cfg.Server.CacheModels,
		exportDir:   cfg.Server.ExportDir,
		console:     console,
		logger:      logger,
		now:         time.Now,
	}
}

// names returns the stories to process, defaulting to the whole catalog.
func (b *Batch) names() []string {
	if len(b.cfg.Stories) == 0 {
		return b.catalog.Names()
	}
	return b.cfg.Stories
}

// Run generates every story and writes each one to out, preceded by its seed
// and followed by a blank line. A story that fails is logged and skipped; the
// number of failures is returned. Stories are always written in configured
// order, even when they are generated in parallel.
func (b *Batch) Run(ctx context.Context, out io.Writer) (int, error) {
	names := b.names()
	b.logger.Info("Starting batch",
		slog.Int("stories", len(names)),
		slog.Int("chain_length", b.cfg.ChainLength),
		slog.Int("num_output_words", b.cfg.NumOutputWords),
		slog.Bool("parallel", b.cfg.Parallel),
	)

	failed := 0
	report := func(res storyResult) error {
		if res.err != nil {
			failed++
			b.logger.Error("Failed to generate story", slog.String("source", res.name), slog.Any("error", res.err))
			return nil
		}
		_, err := fmt.Fprintf(out, "Seed for given passage: %d\n%s\n\n", res.seed, res.text)
		return err
	}

	if !b.cfg.Parallel {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return failed, err
			}
			if err := report(b.tell(ctx, name)); err != nil {
				return failed, fmt.Errorf("failed to write story: %w", err)
			}
		}
		return failed, nil
	}

	results := make([]storyResult, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxWorkers)
	for i, name := range names {
		g.Go(func() error {
			results[i] = b.tell(gctx, name)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return failed, err
	}

	for _, res := range results {
		if err := report(res); err != nil {
			return failed, fmt.Errorf("failed to write story: %w", err)
		}
	}
	return failed, nil
}

// tell produces the story for a single source name.
func (b *Batch) tell(ctx context.Context, name string) storyResult {
	res := storyResult{name: name}

	src, err := b.source(name)
	if err != nil {
		res.err = err
		return res
	}

	chain, err := b.chainFor(ctx, src)
	if err != nil {
		res.err = err
		return res
	}

	res.seed = b.cfg.RandomSeed
	if res.seed == 0 {
		res.seed = b.now().UnixMilli()
	}
	walker := markov.NewWalker(res.seed)
	walker.SetLogger(b.logger)
	res.text, res.err = walker.Generate(chain,
		markov.WithTargetWords(b.cfg.NumOutputWords),
		markov.WithLineWidth(b.cfg.OutputWidth),
	)
	return res
}

func (b *Batch) source(name string) (corpus.Source, error) {
	if name == corpus.ConsoleName {
		if b.console == nil {
			return nil, fmt.Errorf("%w: console input is not available", corpus.ErrSourceUnavailable)
		}
		return b.console, nil
	}
	return corpus.Resolve(b.catalog, b.cfg.CorpusDir, name)
}

// modelName is the cache key for a source built at the configured order.
func (b *Batch) modelName(src corpus.Source) string {
	return fmt.Sprintf("%s-%d", src.Name(), b.cfg.ChainLength)
}

// chainFor opens src and returns its chain, from the cache when possible.
// Interactive sources are never cached.
func (b *Batch) chainFor(ctx context.Context, src corpus.Source) (*markov.Chain, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer func(rc io.ReadCloser) {
		_ = rc.Close()
	}(rc)

	name := b.modelName(src)
	cacheable := b.store != nil && b.cacheModels && src.Kind() == markov.SourceBounded

	if cacheable {
		info, err := b.store.GetModelInfo(ctx, name)
		switch {
		case err == nil:
			chain, err := b.store.LoadChain(ctx, info)
			if err == nil && chain.Len() > 0 {
				b.logger.Debug("Using cached chain", slog.String("model_name", name))
				return chain, nil
			}
			if err != nil {
				b.logger.Warn("Failed to load cached chain, rebuilding", slog.String("model_name", name), slog.Any("error", err))
			}
		case !errors.Is(err, sql.ErrNoRows):
			b.logger.Warn("Failed to look up cached chain", slog.String("model_name", name), slog.Any("error", err))
		}
	}

	builder, err := markov.NewBuilder(b.cfg.ChainLength, nil)
	if err != nil {
		return nil, err
	}
	builder.SetLogger(b.logger)
	chain, err := builder.Build(rc, src.Kind())
	if err != nil {
		return nil, fmt.Errorf("could not build chain for %s: %w", src.Name(), err)
	}

	if cacheable {
		if _, err = b.store.SaveChain(ctx, name, chain); err != nil {
			b.logger.Warn("Failed to cache chain", slog.String("model_name", name), slog.Any("error", err))
		}
	}
	if b.exportDir != "" {
		if err = exportChain(b.exportDir, name, chain); err != nil {
			b.logger.Warn("Failed to export chain", slog.String("model_name", name), slog.Any("error", err))
		}
	}
	return chain, nil
}

// exportChain writes chain as JSON to dir/<name>.json, replacing the file atomically.
func exportChain(dir, name string, chain *markov.Chain) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("could not create export directory: %w", err)
	}
	var buf bytes.Buffer
	if err := chain.Export(name, &buf); err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(dir, name+".json"), &buf)
}
