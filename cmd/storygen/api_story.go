package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/CTAG07/storychain/pkg/corpus"
	"github.com/CTAG07/storychain/pkg/markov"
)

// maxTrainBody limits the size of a corpus uploaded for training.
const maxTrainBody = 64 << 20

// StoryAPI holds the dependencies for the story and model API handlers.
type StoryAPI struct {
	store   *markov.Store
	catalog *corpus.Catalog
	cm      *ConfigManager
	logger  *slog.Logger
	now     func() time.Time
}

// NewStoryAPI creates a new instance of the StoryAPI.
func NewStoryAPI(store *markov.Store, catalog *corpus.Catalog, cm *ConfigManager, logger *slog.Logger) *StoryAPI {
	return &StoryAPI{
		store:   store,
		catalog: catalog,
		cm:      cm,
		logger:  logger,
		now:     time.Now,
	}
}

// RegisterRoutes sets up the routing for /api/stories, /api/models and /api/stats.
func (s *StoryAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stories", s.handleStories)
	mux.HandleFunc("/api/models", s.handleListModels)
	mux.HandleFunc("/api/models/import", s.handleImport)
	mux.HandleFunc("/api/models/", s.handleModelByName)
	mux.HandleFunc("/api/stats", s.handleStats)
}

type PruneRequest struct {
	MinFreq int `json:"minFreq"`
}

type GenerateRequest struct {
	Words int    `json:"words"`
	Width int    `json:"width"`
	Seed  int64  `json:"seed"`
	Start string `json:"start"`
}

type GenerateResponse struct {
	Seed int64  `json:"seed"`
	Text string `json:"text"`
}

// handleStories lists the stories in the catalog.
func (s *StoryAPI) handleStories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, s.catalog.Entries())
}

// handleListModels lists every stored model, sorted by name.
func (s *StoryAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	models, err := s.store.GetModelInfos(r.Context())
	if err != nil {
		s.logger.Error("Failed to get model infos", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	modelList := make([]markov.ModelInfo, 0, len(models))
	for _, model := range models {
		modelList = append(modelList, model)
	}
	slices.SortFunc(modelList, func(a, b markov.ModelInfo) int { return strings.Compare(a.Name, b.Name) })
	respondWithJSON(w, http.StatusOK, modelList)
}

// handleModelByName routes actions for a specific model, e.g., train, prune, export, generate, delete.
func (s *StoryAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/models/")
	parts := strings.Split(path, "/")
	modelName := parts[0]

	if modelName == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	// Training creates the model, so it is the one action that doesn't need it to exist.
	if len(parts) == 2 && parts[1] == "train" {
		s.handleTrain(w, r, modelName)
		return
	}

	model, err := s.store.GetModelInfo(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondWithError(w, http.StatusNotFound, "Model not found")
			return
		}
		s.logger.Error("Failed to get model info by name", "name", modelName, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
		return
	}

	if len(parts) == 1 { // Path is just /api/models/{name}
		switch r.Method {
		case http.MethodGet:
			respondWithJSON(w, http.StatusOK, model)
		case http.MethodDelete:
			if err = s.store.RemoveModel(r.Context(), model); err != nil {
				s.logger.Error("Failed to remove model", "name", modelName, "error", err)
				respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to remove model: %v", err))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	switch parts[1] {
	case "prune":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		var req PruneRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		if err = s.store.PruneModel(r.Context(), model, req.MinFreq); err != nil {
			s.logger.Error("Failed to prune model", "name", modelName, "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "export":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.json\"", modelName))
		if err = s.store.ExportModel(r.Context(), model, w); err != nil {
			s.logger.Error("Failed to export model", "name", modelName, "error", err)
		}

	case "generate":
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleGenerate(w, r, model)

	case "stream":
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", "GET")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		s.handleStream(w, r, model)

	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

// handleTrain builds a chain from the request body and stores it under name,
// replacing any existing model with that name.
func (s *StoryAPI) handleTrain(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	order := s.cm.Get().Story.ChainLength
	if v := r.URL.Query().Get("order"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid order parameter")
			return
		}
		order = n
	}

	builder, err := markov.NewBuilder(order, nil)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	builder.SetLogger(s.logger)

	chain, err := builder.Build(http.MaxBytesReader(w, r.Body, maxTrainBody), markov.SourceBounded)
	if err != nil {
		if errors.Is(err, markov.ErrEmptyInput) {
			respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Training failed: %v", err))
			return
		}
		s.logger.Error("Failed to train model", "name", name, "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Training failed: %v", err))
		return
	}

	model, err := s.store.SaveChain(r.Context(), name, chain)
	if err != nil {
		s.logger.Error("Failed to save trained model", "name", name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save model: %v", err))
		return
	}
	respondWithJSON(w, http.StatusCreated, model)
}

// generateOptions fills in request defaults from the story configuration.
func (s *StoryAPI) generateOptions(req *GenerateRequest) []markov.GenerateOption {
	story := s.cm.Get().Story
	if req.Words <= 0 {
		req.Words = story.NumOutputWords
	}
	if req.Width <= 0 {
		req.Width = story.OutputWidth
	}
	if req.Seed == 0 {
		req.Seed = story.RandomSeed
	}
	if req.Seed == 0 {
		req.Seed = s.now().UnixMilli()
	}
	opts := []markov.GenerateOption{markov.WithTargetWords(req.Words), markov.WithLineWidth(req.Width)}
	if req.Start != "" {
		opts = append(opts, markov.WithStartPhrase(req.Start))
	}
	return opts
}

// handleGenerate walks a stored chain and returns the text with its seed.
func (s *StoryAPI) handleGenerate(w http.ResponseWriter, r *http.Request, model markov.ModelInfo) {
	var req GenerateRequest
	// An empty body means all defaults.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	opts := s.generateOptions(&req)

	chain, err := s.store.LoadChain(r.Context(), model)
	if err != nil {
		s.logger.Error("Failed to load model", "name", model.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
		return
	}

	walker := markov.NewWalker(req.Seed)
	walker.SetLogger(s.logger)
	text, err := walker.Generate(chain, opts...)
	if err != nil {
		if errors.Is(err, markov.ErrEmptyModel) {
			respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Generation failed: %v", err))
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Generation failed: %v", err))
		return
	}
	s.logger.Info("Story generated", slog.String("model_name", model.Name), slog.Int64("seed", req.Seed), slog.Int("words", req.Words))
	respondWithJSON(w, http.StatusOK, GenerateResponse{Seed: req.Seed, Text: text})
}

// handleStream writes generated text to the client as it is produced, flushing
// after every line.
func (s *StoryAPI) handleStream(w http.ResponseWriter, r *http.Request, model markov.ModelInfo) {
	query := r.URL.Query()
	req := GenerateRequest{Start: query.Get("start")}
	var err error
	if v := query.Get("words"); v != "" {
		if req.Words, err = strconv.Atoi(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid words parameter")
			return
		}
	}
	if v := query.Get("width"); v != "" {
		if req.Width, err = strconv.Atoi(v); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid width parameter")
			return
		}
	}
	if v := query.Get("seed"); v != "" {
		if req.Seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid seed parameter")
			return
		}
	}
	opts := s.generateOptions(&req)

	chain, err := s.store.LoadChain(r.Context(), model)
	if err != nil {
		s.logger.Error("Failed to load model", "name", model.Name, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load model: %v", err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	walker := markov.NewWalker(req.Seed)
	walker.SetLogger(s.logger)
	fragments, err := walker.GenerateStream(ctx, chain, opts...)
	if err != nil {
		if errors.Is(err, markov.ErrEmptyModel) {
			respondWithError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Generation failed: %v", err))
			return
		}
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Generation failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Story-Seed", strconv.FormatInt(req.Seed, 10))
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	for frag := range fragments {
		if _, err = w.Write([]byte(frag.Text)); err != nil {
			s.logger.Debug("Client went away during stream", "name", model.Name, "error", err)
			cancel()
			for range fragments {
			}
			return
		}
		if frag.LineBreak && canFlush {
			flusher.Flush()
		}
	}
	if canFlush {
		flusher.Flush()
	}
}

// handleImport imports a model from an uploaded JSON file.
func (s *StoryAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	model, err := s.store.ImportModel(r.Context(), r.Body)
	if err != nil {
		s.logger.Error("Failed to import model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	respondWithJSON(w, http.StatusCreated, model)
}

// handleStats returns statistics for every stored model.
func (s *StoryAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.logger.Error("Failed to get stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve stats: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}
