package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/storychain/pkg/corpus"
	"github.com/CTAG07/storychain/pkg/markov"
)

// Server holds the dependencies shared by the API handlers.
type Server struct {
	cm        *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	store     *markov.Store
	storyAPI  *StoryAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// NewServer creates the API server and registers its routes.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, catalog *corpus.Catalog, actionChan chan string) (*Server, error) {
	store, err := markov.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating chain store: %w", err)
	}
	store.SetLogger(logger)

	server := &Server{
		cm:        cm,
		db:        db,
		logger:    logger,
		store:     store,
		storyAPI:  NewStoryAPI(store, catalog, cm, logger),
		serverAPI: NewServerAPI(cm, actionChan, logger),
		apiMux:    http.NewServeMux(),
	}

	server.serverAPI.RegisterRoutes(server.apiMux)
	server.storyAPI.RegisterRoutes(server.apiMux)
	server.apiMux.HandleFunc("/", server.handleRoot)

	return server, nil
}

// Close releases the store's prepared statements. The database is owned by the caller.
func (s *Server) Close() {
	s.store.Close()
}

// handleRoot answers anything outside /api/ with a 404.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("Unknown path requested", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	respondWithError(w, http.StatusNotFound, "Not found")
}
