package monitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumastream/luma/stream"
)

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Streams       int    `json:"streams"`
	Subscribers   int    `json:"subscribers"`
}

// NewHandler wires the monitor routes: /healthz, /metrics and
// /api/streams.
func NewHandler(m *Metrics, reg *stream.Registry) http.Handler {
	start := time.Now()
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, healthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(start).Seconds()),
			Streams:       len(reg.Names()),
			Subscribers:   reg.SubscriberTotal(),
		})
	})

	r.Get("/api/streams", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, reg.Snapshot())
	})

	r.Handle("/metrics", m.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
