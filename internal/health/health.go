// Package health exposes the outcome of the most recent schedule check over
// HTTP.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/homectl/plugsched/internal/coordinator"
	"github.com/homectl/plugsched/pkg/pubsub"
)

type Health struct {
	publisher *pubsub.Publisher[coordinator.Result]
	logger    *slog.Logger
	result    coordinator.Result
	updated   bool
	lock      sync.RWMutex
}

func New(publisher *pubsub.Publisher[coordinator.Result], logger *slog.Logger) *Health {
	return &Health{
		publisher: publisher,
		logger:    logger,
	}
}

func (h *Health) Run(ctx context.Context) error {
	h.logger.Debug("started")
	defer h.logger.Debug("stopped")

	ch := h.publisher.Subscribe()
	defer h.publisher.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case result := <-ch:
			h.lock.Lock()
			h.result = result
			h.updated = true
			h.lock.Unlock()
		}
	}
}

func (h *Health) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if !h.updated {
		http.Error(w, "no check completed yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(h.result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
