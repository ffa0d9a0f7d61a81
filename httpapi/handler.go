// Package httpapi exposes a read-only HTTP query surface over a topic
// directory's finished segments, routed with gorilla/mux. It never touches
// a topic's active write path — every handler here goes through selector,
// which only opens segment pairs read-only.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/distlimit/limlog/internal/codec"
	"github.com/distlimit/limlog/selector"
)

// Handler serves read-only queries over the segment pairs in Directory.
type Handler struct {
	Directory string
}

// NewRouter builds a *mux.Router with every route this package exposes,
// rooted at "/".
func NewRouter(directory string) *mux.Router {
	h := &Handler{Directory: directory}
	r := mux.NewRouter()
	r.HandleFunc("/segments", h.listSegments).Methods(http.MethodGet)
	r.HandleFunc("/segments/{stem}/at/{id}", h.findInSegment).Methods(http.MethodGet)
	return r
}

func (h *Handler) listSegments(w http.ResponseWriter, r *http.Request) {
	summaries, err := selector.Segments(h.Directory)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) findInSegment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	stem := vars["stem"]

	u, err := ulid.ParseStrict(vars["id"])
	if err != nil {
		http.Error(w, "malformed id: must be a canonical ULID string", http.StatusBadRequest)
		return
	}
	id := codec.ID(u)

	offset, found, err := selector.ByID(h.Directory, stem, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if !found {
		http.Error(w, "no entry at or after the requested id", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"offset": offset})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
