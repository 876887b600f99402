package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundwatch/internal/model"
	"fundwatch/internal/watchlist"
)

// maxImportSize caps import documents; a watchlist export is tiny.
const maxImportSize = 1 << 20

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.log.Error().Err(err).Msg("encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"tickers":    s.store.Tickers(),
		"sort_order": s.store.SortOrder(),
	})
}

func (s *Server) handleAddTicker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	t, err := s.store.Add(req.Symbol)
	switch {
	case errors.Is(err, watchlist.ErrInvalidSymbol):
		s.respondError(w, http.StatusBadRequest, "symbol must be 5-6 digits")
		return
	case errors.Is(err, watchlist.ErrDuplicate):
		s.respondError(w, http.StatusConflict, "symbol already tracked")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Kick off the first fetch so the card fills in without waiting for the
	// next cycle. The card renders as loading until then.
	go s.sched.UpdateMany(s.ctx, []model.Ticker{t})

	s.respondJSON(w, http.StatusCreated, t)
}

func (s *Server) handleRemoveTicker(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	if !s.store.Remove(symbol) {
		s.respondError(w, http.StatusNotFound, "symbol not tracked")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	removed := s.store.RemoveBulk(req.Symbols)
	s.respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleSortOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.store.SetSortOrder(model.ParseSortOrder(req.Order))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValuations(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.store.Valuations())
}

func (s *Server) handleIndices(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, s.sched.Indices())
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.sched.Refreshing() {
		s.respondJSON(w, http.StatusAccepted, map[string]bool{"started": false, "refreshing": true})
		return
	}
	go s.sched.RefreshAll(s.ctx)
	s.respondJSON(w, http.StatusAccepted, map[string]bool{"started": true, "refreshing": true})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"in_flight":  s.sched.InFlight(),
		"refreshing": s.sched.Refreshing(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	data, filename, err := s.store.Export()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "read import document")
		return
	}
	added, err := s.store.Import(data)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"added": added})
}
