package markov

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ModelInfo holds the essential metadata for a stored chain, including its
// unique ID, name, the chain length, and the style flags detected at build time.
type ModelInfo struct {
	Id    int        `json:"id"`
	Name  string     `json:"name"`
	Order int        `json:"order"`
	Flags StyleFlags `json:"flags"`
}

// SetupSchema initializes the necessary tables in the provided database. This
// function should be called once on a new database before any other operations
// are performed. It is idempotent and safe to call on an already-initialized
// database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaPhrases = `
CREATE TABLE IF NOT EXISTS markov_phrases (
    phrase_id INTEGER PRIMARY KEY,
    phrase_text TEXT NOT NULL UNIQUE
);
`
		schemaModels = `
CREATE TABLE IF NOT EXISTS markov_models (
    model_id INTEGER PRIMARY KEY,
    model_name TEXT NOT NULL UNIQUE,
    model_order INTEGER NOT NULL,
    contains_capitals INTEGER NOT NULL DEFAULT 0,
    contains_punctuation INTEGER NOT NULL DEFAULT 0
);
`
		schemaChains = `
CREATE TABLE IF NOT EXISTS markov_chains (
    model_id INTEGER NOT NULL,
    prefix_id INTEGER NOT NULL,
    next_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    frequency INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (model_id, prefix_id, next_id)
);
`
		indexChains = `CREATE INDEX IF NOT EXISTS markov_chains_position ON markov_chains (model_id, position);`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// If the transaction succeeds, tx.Commit() will be called first, and the rollback will do nothing. If it fails, this will clean up.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaPhrases); err != nil {
		return fmt.Errorf("could not create phrases schema: %w", err)
	}

	if _, err = tx.Exec(schemaModels); err != nil {
		return fmt.Errorf("could not create models schema: %w", err)
	}

	if _, err = tx.Exec(schemaChains); err != nil {
		return fmt.Errorf("could not create chains schema: %w", err)
	}

	if _, err = tx.Exec(indexChains); err != nil {
		return fmt.Errorf("could not create chains index: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Store caches built chains in a SQLite database so a corpus only has to be
// parsed once. It holds the database connection and prepared SQL statements
// for efficient database interaction.
type Store struct {
	db                 *sql.DB
	stmtGetModelInfo   *sql.Stmt
	stmtGetModels      *sql.Stmt
	stmtPruneModel     *sql.Stmt
	stmtModelStats     *sql.Stmt
	stmtGetPhraseCount *sql.Stmt
	stmtLoadChain      *sql.Stmt
	logger             *slog.Logger
}

// NewStore creates and returns a new Store. It pre-compiles the SQL statements
// used outside of transactions, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGetModelInfo, err := db.Prepare(`SELECT model_id, model_order, contains_capitals, contains_punctuation FROM markov_models WHERE model_name = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetModels, err := db.Prepare(`SELECT model_id, model_name, model_order, contains_capitals, contains_punctuation FROM markov_models;`)
	if err != nil {
		return nil, err
	}

	stmtPruneModel, err := db.Prepare(`DELETE FROM markov_chains WHERE model_id = ? AND frequency <= ?;`)
	if err != nil {
		return nil, err
	}

	stmtModelStats, err := db.Prepare(`
SELECT COUNT(DISTINCT c.prefix_id),
       COUNT(*),
       COALESCE(SUM(c.frequency), 0),
       COUNT(DISTINCT CASE WHEN substr(p.phrase_text, 1, 1) BETWEEN 'A' AND 'Z' THEN c.prefix_id END),
       COUNT(DISTINCT CASE WHEN p.phrase_text LIKE '%.' THEN c.prefix_id END)
FROM markov_chains c JOIN markov_phrases p ON p.phrase_id = c.prefix_id
WHERE c.model_id = ?;`)
	if err != nil {
		return nil, err
	}

	stmtGetPhraseCount, err := db.Prepare(`SELECT COUNT(*) FROM markov_phrases;`)
	if err != nil {
		return nil, err
	}

	stmtLoadChain, err := db.Prepare(`
SELECT p.phrase_text, n.phrase_text, c.frequency
FROM markov_chains c
JOIN markov_phrases p ON p.phrase_id = c.prefix_id
JOIN markov_phrases n ON n.phrase_id = c.next_id
WHERE c.model_id = ?
ORDER BY c.position;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:                 db,
		stmtGetModelInfo:   stmtGetModelInfo,
		stmtGetModels:      stmtGetModels,
		stmtPruneModel:     stmtPruneModel,
		stmtModelStats:     stmtModelStats,
		stmtGetPhraseCount: stmtGetPhraseCount,
		stmtLoadChain:      stmtLoadChain,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// Close releases all prepared SQL statements held by the Store. It should be
// called when the Store is no longer needed to free up database resources.
func (s *Store) Close() {
	_ = s.stmtGetModelInfo.Close()
	_ = s.stmtGetModels.Close()
	_ = s.stmtPruneModel.Close()
	_ = s.stmtModelStats.Close()
	_ = s.stmtGetPhraseCount.Close()
	_ = s.stmtLoadChain.Close()
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// GetModelInfos retrieves metadata for all models currently in the database,
// returning them in a map keyed by model name.
func (s *Store) GetModelInfos(ctx context.Context) (map[string]ModelInfo, error) {
	rows, err := s.stmtGetModels.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	models := make(map[string]ModelInfo)
	for rows.Next() {
		var model ModelInfo
		if err = rows.Scan(&model.Id, &model.Name, &model.Order, &model.Flags.ContainsCapitals, &model.Flags.ContainsPunctuation); err != nil {
			return nil, err
		}
		models[model.Name] = model
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// GetModelInfo retrieves the metadata for a single model specified by name.
// sql.ErrNoRows is returned if no such model exists.
func (s *Store) GetModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	model := ModelInfo{Name: modelName}
	err := s.stmtGetModelInfo.QueryRowContext(ctx, modelName).Scan(&model.Id, &model.Order, &model.Flags.ContainsCapitals, &model.Flags.ContainsPunctuation)
	if err != nil {
		return ModelInfo{}, err
	}
	return model, nil
}

// SaveChain stores chain under name, replacing any chain previously saved
// under that name. The entire operation is performed within a single database
// transaction to ensure data integrity.
func (s *Store) SaveChain(ctx context.Context, name string, chain *Chain) (ModelInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ModelInfo{}, err
	}
	// All transaction-specific statements will also be closed with this or the .Commit()
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	model := ModelInfo{Name: name, Order: chain.order, Flags: chain.flags}

	err = tx.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&model.Id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			"INSERT INTO markov_models (model_name, model_order, contains_capitals, contains_punctuation) VALUES (?, ?, ?, ?)",
			name, chain.order, chain.flags.ContainsCapitals, chain.flags.ContainsPunctuation)
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to insert model '%s': %w", name, err)
		}
		newID, err := res.LastInsertId()
		if err != nil {
			return ModelInfo{}, fmt.Errorf("failed to read id of model '%s': %w", name, err)
		}
		model.Id = int(newID)
	case err != nil:
		return ModelInfo{}, fmt.Errorf("failed to query for model '%s': %w", name, err)
	default:
		if _, err = tx.ExecContext(ctx,
			"UPDATE markov_models SET model_order = ?, contains_capitals = ?, contains_punctuation = ? WHERE model_id = ?",
			chain.order, chain.flags.ContainsCapitals, chain.flags.ContainsPunctuation, model.Id); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to update model '%s': %w", name, err)
		}
		if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
			return ModelInfo{}, fmt.Errorf("failed to clear chains for model '%s': %w", name, err)
		}
	}

	stmtGetOrInsertPhrase, err := tx.PrepareContext(ctx, `INSERT INTO markov_phrases (phrase_text) VALUES (?) ON CONFLICT(phrase_text) DO UPDATE SET phrase_text=excluded.phrase_text RETURNING phrase_id;`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare phrase insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtGetOrInsertPhrase)

	stmtInsertChain, err := tx.PrepareContext(ctx, `INSERT INTO markov_chains (model_id, prefix_id, next_id, position, frequency) VALUES (?, ?, ?, ?, ?);`)
	if err != nil {
		return ModelInfo{}, fmt.Errorf("failed to prepare chain insert statement: %w", err)
	}
	defer func(stmt *sql.Stmt) {
		_ = stmt.Close()
	}(stmtInsertChain)

	phraseCache := make(map[string]int)
	phraseID := func(text string) (int, error) {
		if id, ok := phraseCache[text]; ok {
			return id, nil
		}
		var id int
		if err := stmtGetOrInsertPhrase.QueryRowContext(ctx, text).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to get or insert phrase '%s': %w", text, err)
		}
		phraseCache[text] = id
		return id, nil
	}

	position := 0
	for _, key := range chain.keys {
		prefixID, err := phraseID(key)
		if err != nil {
			return ModelInfo{}, err
		}
		for _, choice := range chain.next[key] {
			nextID, err := phraseID(choice.Text)
			if err != nil {
				return ModelInfo{}, err
			}
			if _, err = stmtInsertChain.ExecContext(ctx, model.Id, prefixID, nextID, position, choice.Freq); err != nil {
				return ModelInfo{}, fmt.Errorf("failed to insert chain link (%d -> %d): %w", prefixID, nextID, err)
			}
			position++
		}
	}

	if err = tx.Commit(); err != nil {
		return ModelInfo{}, err
	}

	s.logger.InfoContext(ctx, "Chain saved",
		slog.String("model_name", name),
		slog.Int("model_id", model.Id),
		slog.Int("phrases", chain.Len()),
		slog.Int("links", position),
	)

	return model, nil
}

// LoadChain rebuilds a stored chain. Keys and successors come back in the
// order they were saved, so a loaded chain generates exactly the same text as
// the saved chain for a given seed.
func (s *Store) LoadChain(ctx context.Context, model ModelInfo) (*Chain, error) {
	rows, err := s.stmtLoadChain.QueryContext(ctx, model.Id)
	if err != nil {
		return nil, fmt.Errorf("could not query chains for model %d: %w", model.Id, err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	chain := newChain(model.Order)
	chain.flags = model.Flags
	for rows.Next() {
		var prefix, next string
		var freq int
		if err = rows.Scan(&prefix, &next, &freq); err != nil {
			return nil, err
		}
		chain.add(prefix, next, freq)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Chain loaded",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("phrases", chain.Len()),
	)
	return chain, nil
}

// RemoveModel deletes a model and all of its associated chain data from the
// database. Phrases no longer referenced by any model are removed as well.
// The operation is performed within a transaction.
func (s *Store) RemoveModel(ctx context.Context, model ModelInfo) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_chains WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove chains for model %d: %w", model.Id, err)
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM markov_models WHERE model_id = ?", model.Id); err != nil {
		return fmt.Errorf("failed to remove model %d: %w", model.Id, err)
	}

	res, err := tx.ExecContext(ctx, `
DELETE FROM markov_phrases WHERE phrase_id NOT IN (
    SELECT prefix_id FROM markov_chains UNION SELECT next_id FROM markov_chains
);`)
	if err != nil {
		return fmt.Errorf("failed to remove orphaned phrases: %w", err)
	}
	orphans, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model removed successfully",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int64("phrases_removed", orphans),
	)

	return tx.Commit()
}

// PruneModel removes all chain links from a specific model that have a frequency
// less than or equal to `minFreq`. It is the stored counterpart of Chain.Prune.
func (s *Store) PruneModel(ctx context.Context, model ModelInfo, minFreq int) error {
	res, err := s.stmtPruneModel.ExecContext(ctx, model.Id, minFreq)
	if err != nil {
		return fmt.Errorf("could not prune model %d: %w", model.Id, err)
	}
	rowsAffected, _ := res.RowsAffected()

	s.logger.InfoContext(ctx, "Model pruned",
		slog.String("model_name", model.Name),
		slog.Int("model_id", model.Id),
		slog.Int("min_frequency", minFreq),
		slog.Int64("links_removed", rowsAffected),
	)
	return nil
}

// ExportModel loads a stored chain and writes it as JSON to w.
func (s *Store) ExportModel(ctx context.Context, model ModelInfo, w io.Writer) error {
	chain, err := s.LoadChain(ctx, model)
	if err != nil {
		return err
	}
	return chain.Export(model.Name, w)
}

// ImportModel reads a JSON model from r and saves it, replacing any model
// stored under the same name.
func (s *Store) ImportModel(ctx context.Context, r io.Reader) (ModelInfo, error) {
	name, chain, err := ImportChain(r)
	if err != nil {
		return ModelInfo{}, err
	}
	if name == "" {
		return ModelInfo{}, errors.New("imported model has no name")
	}
	return s.SaveChain(ctx, name, chain)
}

// DBStats holds aggregated statistics for the entire database, including a
// list of all models and their individual stats.
type DBStats struct {
	Models      []ModelInfo        `json:"models"`       // A list of models in the database
	Stats       map[int]ChainStats `json:"stats"`        // A mapping of model ids to their stats
	PhraseCount int                `json:"phrase_count"` // The number of unique phrases across all models
}

// GetStats returns a snapshot of statistics for the entire database,
// including global counts and per-model stats.
func (s *Store) GetStats(ctx context.Context) (*DBStats, error) {
	modelInfos, err := s.GetModelInfos(ctx)
	if err != nil {
		return nil, err
	}

	var phraseCount int
	if err = s.stmtGetPhraseCount.QueryRowContext(ctx).Scan(&phraseCount); err != nil {
		return nil, err
	}

	models := make([]ModelInfo, 0, len(modelInfos))
	modelStats := make(map[int]ChainStats)
	for _, m := range modelInfos {
		models = append(models, m)
		var st ChainStats
		err = s.stmtModelStats.QueryRowContext(ctx, m.Id).Scan(&st.Keys, &st.Transitions, &st.TotalFrequency, &st.CapitalKeys, &st.TerminalKeys)
		if err != nil {
			return nil, err
		}
		modelStats[m.Id] = st
	}

	return &DBStats{
		Models:      models,
		Stats:       modelStats,
		PhraseCount: phraseCount,
	}, nil
}
