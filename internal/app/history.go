package app

import (
	"encoding/json"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Record describes one finished transfer.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Peer      string    `json:"peer"`
	Transport string    `json:"transport"`
	Gzip      bool      `json:"gzip,omitempty"`
	Bytes     int64     `json:"bytes"` // as received; compressed when Gzip is set
	State     string    `json:"state"`
	Kind      string    `json:"kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Finished  time.Time `json:"finished"`
}

// History keeps the most recent finished transfers, evicting the oldest
// once full.
type History struct {
	cache *lru.Cache
}

func NewHistory(size int) (*History, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &History{cache: c}, nil
}

func (h *History) Add(rec Record) {
	h.cache.Add(rec.ID, rec)
}

// Get looks a record up without refreshing it.
func (h *History) Get(id string) (Record, bool) {
	v, ok := h.cache.Peek(id)
	if !ok {
		return Record{}, false
	}
	return v.(Record), true
}

// List returns the records newest first.
func (h *History) List() []Record {
	keys := h.cache.Keys() // oldest first
	out := make([]Record, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if v, ok := h.cache.Peek(keys[i]); ok {
			out = append(out, v.(Record))
		}
	}
	return out
}

// ServeHTTP answers GET /transfers with the history as JSON.
func (h *History) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.List())
}
