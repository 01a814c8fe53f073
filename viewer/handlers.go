package main

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Server holds shared state for HTTP handlers.
type Server struct {
	dbCache *DBCache
	hub     *Hub
}

func NewServer(roots []string, refresh time.Duration, hub *Hub) *Server {
	return &Server{
		dbCache: NewDBCache(roots, refresh),
		hub:     hub,
	}
}

// RegisterRoutes sets up all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/episodes/", s.handleEpisodeSteps)
	mux.HandleFunc("/api/occupancy", s.handleOccupancy)
	if s.hub != nil {
		mux.HandleFunc("/ws/watch", s.hub.handleWatch)
	}
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	index, err := s.dbCache.Episodes()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	limit := parseIntQuery(r, "limit", 200)
	offset := parseIntQuery(r, "offset", 0)

	total := len(index)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	writeJSON(w, EpisodesResponse{Total: total, Episodes: index[offset:end]})
}

func (s *Server) handleEpisodeSteps(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// /api/episodes/{id}
	rest := strings.TrimPrefix(r.URL.Path, "/api/episodes/")
	episodeID, err := url.PathUnescape(rest)
	if err != nil || episodeID == "" || strings.Contains(episodeID, "/") {
		http.NotFound(w, r)
		return
	}

	steps, err := s.dbCache.EpisodeSteps(episodeID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(steps) == 0 {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, EpisodeResponse{EpisodeID: episodeID, Steps: steps})
}

func (s *Server) handleOccupancy(w http.ResponseWriter, r *http.Request) {
	withCORS(w, r)
	if r.Method == http.MethodOptions {
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	population := parseIntQuery(r, "population", 0)
	t := parseIntQuery(r, "t", 0)

	cells, err := s.dbCache.Occupancy(population, t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, OccupancyResponse{Population: population, T: t, Cells: cells})
}
