package markov

import (
	"database/sql"
	"go/build"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// sampleText is the scenario corpus: "the cat" is followed by "sat" once and
// by "ran." once.
const sampleText = "the cat sat on the mat. the cat ran."

// proseText has capitals and sentence-ending periods.
const proseText = `The cat sat on the mat. The dog sat on the rug.
A bird sang in the tree. The cat ran to the tree. A dog barked at the bird.`

// setupTestDB creates a new SQLite database and a Store for testing.
// It uses t.Cleanup to ensure resources are released.
func setupTestDB(t *testing.T) (*sql.DB, *Store) {
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=-4000")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(s.Close)

	return db, s
}

// buildChain is a convenience helper that builds a chain from a bounded string.
func buildChain(t testing.TB, text string, order int) *Chain {
	t.Helper()
	b, err := NewBuilder(order, NewDefaultTokenizer())
	if err != nil {
		t.Fatalf("NewBuilder(%d) failed: %v", order, err)
	}
	chain, err := b.Build(strings.NewReader(text), SourceBounded)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return chain
}

var (
	benchmarkCorpus string
	corpusOnce      sync.Once
)

// createBenchmarkCorpus reads Go documentation sources to create a prose-ish corpus for benchmarking.
func createBenchmarkCorpus() string {
	corpusOnce.Do(func() {
		var sb strings.Builder
		goRoot := build.Default.GOROOT
		filesToRead := []string{
			filepath.Join(goRoot, "src/net/http/doc.go"),
			filepath.Join(goRoot, "src/fmt/doc.go"),
			filepath.Join(goRoot, "src/text/template/doc.go"),
		}

		for _, file := range filesToRead {
			content, err := os.ReadFile(file)
			if err != nil {
				benchmarkCorpus = "This is a fallback corpus for benchmarking. It is not very long but will prevent a crash. "
				return
			}
			sb.Write(content)
			sb.WriteString("\n")
		}
		benchmarkCorpus = sb.String()
	})
	return benchmarkCorpus
}
