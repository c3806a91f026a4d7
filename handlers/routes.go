package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients are served from other origins during development.
		return true
	},
}

// Routes wires the websocket endpoint, the status API and the resource files.
// ctx bounds every client session.
func Routes(ctx context.Context, deps Deps, resourceRoot string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			deps.Log.Printf("Failed to upgrade connection: %v", err)
			return
		}
		HandleClientConnection(ctx, conn, deps)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": deps.Clients.Count()})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Get("/soundscape", func(w http.ResponseWriter, req *http.Request) {
			sctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			st, err := deps.Room.Status(sctx)
			if err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
				return
			}
			respondJSON(w, http.StatusOK, st)
		})
		r.Get("/renders", func(w http.ResponseWriter, req *http.Request) {
			limit := 20
			if v := req.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
					return
				}
				limit = min(n, 100)
			}
			recs, err := deps.Store.RecentRenders(deps.Room.Name(), limit)
			if err != nil {
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			respondJSON(w, http.StatusOK, recs)
		})
	})

	// Clients download samples and the mixed clip from here.
	fileServer := http.FileServer(http.Dir(resourceRoot))
	r.Handle("/resources/*", http.StripPrefix("/resources", fileServer))

	return r
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
