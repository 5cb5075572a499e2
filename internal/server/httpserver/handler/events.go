package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/onboard-go/internal/core/service"
	"github.com/yndnr/onboard-go/internal/telemetry/logger"
)

// handleEvents handles GET /sessions/{id}/events.
//
// The response is a text/event-stream. Each observed change is sent as a
// "change" event whose data is a ChangeEvent; the first event reports the
// current value. ?fields=a,b limits the value to those top-level keys.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, "ONB-SYS-5000", "streaming unsupported", nil)
		return
	}

	var fields []string
	if raw := r.URL.Query().Get("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	log := logger.L(r.Context()).With("session_id", sessionID)
	obs := service.NewObserver(h.store, sessionID, service.FieldExtractor(fields...),
		service.WithPollInterval(h.observerPoll),
		service.WithObserverLogger(log),
		service.WithObserverMetrics(h.recorder),
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- obs.Run(ctx)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	log.Debug("event stream opened", "fields", fields)
	var seq int
	for {
		select {
		case change, open := <-obs.Changes():
			if !open {
				if err := <-runErr; err != nil {
					log.Warn("observer stopped", "error", err)
				}
				return
			}
			payload, err := json.Marshal(changeToEvent(change))
			if err != nil {
				log.Error("failed to encode change", "error", err)
				continue
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: change\ndata: %s\n\n", seq, payload); err != nil {
				return
			}
			flusher.Flush()

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-h.streamsDone:
			cancel()
			<-runErr
			log.Debug("event stream ended by shutdown", "events", seq)
			return

		case <-ctx.Done():
			<-runErr
			log.Debug("event stream closed", "events", seq)
			return
		}
	}
}
