package markov

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestSaveAndLoadChain(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	chain := buildChain(t, proseText, 2)

	saved, err := s.SaveChain(ctx, "prose", chain)
	if err != nil {
		t.Fatalf("SaveChain failed: %v", err)
	}
	if saved.Id == 0 || saved.Order != 2 || saved.Flags != chain.Flags() {
		t.Errorf("unexpected model info %+v", saved)
	}

	info, err := s.GetModelInfo(ctx, "prose")
	if err != nil {
		t.Fatalf("GetModelInfo failed: %v", err)
	}
	if !reflect.DeepEqual(info, saved) {
		t.Errorf("GetModelInfo = %+v, want %+v", info, saved)
	}

	loaded, err := s.LoadChain(ctx, info)
	if err != nil {
		t.Fatalf("LoadChain failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Keys(), chain.Keys()) {
		t.Errorf("key order not preserved:\n%q\n%q", loaded.Keys(), chain.Keys())
	}
	for _, key := range chain.Keys() {
		want, wantTotal := chain.Next(key)
		got, gotTotal := loaded.Next(key)
		if !reflect.DeepEqual(got, want) || gotTotal != wantTotal {
			t.Errorf("Next(%q) = %+v/%d, want %+v/%d", key, got, gotTotal, want, wantTotal)
		}
	}

	want, _ := NewWalker(21).Generate(chain, WithTargetWords(60))
	got, _ := NewWalker(21).Generate(loaded, WithTargetWords(60))
	if got != want {
		t.Errorf("loaded chain generated different text")
	}
}

func TestSaveChainReplaces(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	if _, err := s.SaveChain(ctx, "story", buildChain(t, proseText, 2)); err != nil {
		t.Fatalf("first SaveChain failed: %v", err)
	}
	replaced, err := s.SaveChain(ctx, "story", buildChain(t, sampleText, 1))
	if err != nil {
		t.Fatalf("second SaveChain failed: %v", err)
	}
	if replaced.Order != 1 {
		t.Errorf("expected order 1 after replace, got %d", replaced.Order)
	}

	var models int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_models").Scan(&models)
	if models != 1 {
		t.Errorf("expected 1 model row, got %d", models)
	}

	loaded, err := s.LoadChain(ctx, replaced)
	if err != nil {
		t.Fatalf("LoadChain failed: %v", err)
	}
	if got := loaded.Successors("cat"); !reflect.DeepEqual(got, []string{"sat", "ran."}) {
		t.Errorf("unexpected successors after replace: %q", got)
	}
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	_, _ = s.SaveChain(ctx, "test_model", buildChain(t, sampleText, 2))
	_, _ = s.SaveChain(ctx, "another_model", buildChain(t, sampleText, 1))

	models, err := s.GetModelInfos(ctx)
	if err != nil {
		t.Fatalf("GetModelInfos failed: %v", err)
	}
	if len(models) != 2 {
		t.Errorf("expected 2 models, got %d", len(models))
	}
	if _, ok := models["test_model"]; !ok {
		t.Error("expected to find 'test_model'")
	}
	if m, ok := models["another_model"]; !ok || m.Order != 1 {
		t.Errorf("unexpected 'another_model': %+v", m)
	}

	if _, err = s.GetModelInfo(ctx, "nonexistent_model"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows for nonexistent model, got %v", err)
	}
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	m1, _ := s.SaveChain(ctx, "to_delete", buildChain(t, "delete this data now.", 1))
	m2, _ := s.SaveChain(ctx, "to_keep", buildChain(t, "keep this data safe.", 1))

	if err := s.RemoveModel(ctx, m1); err != nil {
		t.Fatalf("RemoveModel failed: %v", err)
	}

	if _, err := s.GetModelInfo(ctx, m1.Name); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected ErrNoRows for deleted model, got %v", err)
	}

	var count int
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m1.Id).Scan(&count)
	if count != 0 {
		t.Errorf("expected 0 chains for deleted model, found %d", count)
	}

	// Phrases only used by the deleted model are gone, shared ones remain.
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_phrases WHERE phrase_text IN ('delete', 'now.')").Scan(&count)
	if count != 0 {
		t.Errorf("expected orphaned phrases to be removed, found %d", count)
	}
	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_phrases WHERE phrase_text IN ('this', 'data')").Scan(&count)
	if count != 2 {
		t.Errorf("expected shared phrases to remain, found %d", count)
	}

	_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m2.Id).Scan(&count)
	if count == 0 {
		t.Error("expected chains for kept model to exist, but found 0")
	}
}

func TestPruneModel(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	chain := buildChain(t, "a b a b a c", 1)
	model, _ := s.SaveChain(ctx, "prune_test", chain)

	if err := s.PruneModel(ctx, model, 1); err != nil {
		t.Fatalf("PruneModel failed: %v", err)
	}

	var count int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ? AND frequency <= 1", model.Id).Scan(&count)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected 0 chains with frequency 1 after pruning, got %d", count)
	}

	loaded, _ := s.LoadChain(ctx, model)
	if !reflect.DeepEqual(loaded.Keys(), chain.Prune(1).Keys()) {
		t.Errorf("stored prune disagrees with Chain.Prune: %q", loaded.Keys())
	}
}

func TestStoreExportImport(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	chain := buildChain(t, proseText, 2)
	model, _ := s.SaveChain(ctx, "prose", chain)

	var buf bytes.Buffer
	if err := s.ExportModel(ctx, model, &buf); err != nil {
		t.Fatalf("ExportModel failed: %v", err)
	}

	_, s2 := setupTestDB(t)
	imported, err := s2.ImportModel(ctx, &buf)
	if err != nil {
		t.Fatalf("ImportModel failed: %v", err)
	}
	if imported.Name != "prose" || imported.Flags != chain.Flags() {
		t.Errorf("unexpected imported model %+v", imported)
	}

	loaded, _ := s2.LoadChain(ctx, imported)
	want, _ := NewWalker(4).Generate(chain, WithTargetWords(40))
	got, _ := NewWalker(4).Generate(loaded, WithTargetWords(40))
	if got != want {
		t.Errorf("imported model generated different text")
	}

	if _, err = s2.ImportModel(ctx, strings.NewReader(`{"order":1}`)); err == nil {
		t.Error("expected an error importing a model without a name")
	}
}

func TestGetStats(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()
	chain := buildChain(t, proseText, 1)
	model, _ := s.SaveChain(ctx, "prose", chain)

	stats, err := s.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if len(stats.Models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(stats.Models))
	}
	if got, want := stats.Stats[model.Id], chain.Stats(); got != want {
		t.Errorf("stored stats = %+v, in-memory stats = %+v", got, want)
	}
	if stats.PhraseCount == 0 {
		t.Error("expected phrases to be counted")
	}
}

func TestSaveChainReturnsInsertedId(t *testing.T) {
	db, s := setupTestDB(t)
	ctx := context.Background()

	ids := make(map[int]bool)
	for _, name := range []string{"first", "second", "third"} {
		saved, err := s.SaveChain(ctx, name, buildChain(t, sampleText, 1))
		if err != nil {
			t.Fatalf("SaveChain(%q) failed: %v", name, err)
		}
		var rowID int
		if err = db.QueryRowContext(ctx, "SELECT model_id FROM markov_models WHERE model_name = ?", name).Scan(&rowID); err != nil {
			t.Fatal(err)
		}
		if saved.Id == 0 || saved.Id != rowID {
			t.Errorf("SaveChain(%q) returned id %d, stored row has %d", name, saved.Id, rowID)
		}
		ids[saved.Id] = true

		var links int
		_ = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", saved.Id).Scan(&links)
		if links == 0 {
			t.Errorf("no chains stored under model id %d", saved.Id)
		}
	}
	if len(ids) != 3 {
		t.Errorf("expected 3 distinct model ids, got %v", ids)
	}
}
