package main

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/storychain/pkg/markov"
)

const foxText = `The quick fox ran to the river. The lazy dog slept by the river.
A quick dog ran to the barn. The fox slept in the barn. A lazy fox ran home.`

const dogText = `The old dog barked at the moon. The moon hid behind a cloud.
A young dog barked at the cat. The cat hid behind the barn.`

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// setupTestDB opens a fresh chain cache in a temporary directory.
func setupTestDB(t *testing.T) (*sql.DB, *markov.Store) {
	t.Helper()
	db, err := initDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if err = markov.SetupSchema(db); err != nil {
		t.Fatalf("Failed to setup schema: %v", err)
	}
	store, err := markov.NewStore(db)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
		_ = db.Close()
	})
	return db, store
}

// expectedStory generates text the way the program should for the given input.
func expectedStory(t *testing.T, text string, order int, seed int64, words, width int) string {
	t.Helper()
	b, err := markov.NewBuilder(order, nil)
	if err != nil {
		t.Fatal(err)
	}
	chain, err := b.Build(strings.NewReader(text), markov.SourceBounded)
	if err != nil {
		t.Fatal(err)
	}
	story, err := markov.NewWalker(seed).Generate(chain, markov.WithTargetWords(words), markov.WithLineWidth(width))
	if err != nil {
		t.Fatal(err)
	}
	return story
}
