package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"chatterbox/internal/core/contracts"
	"chatterbox/internal/core/domain"
	"chatterbox/pkg/logging"
)

const maxEventBody = 256 * 1024

// EventHandler is the producer side of the event stream: the message layer
// posts envelopes here and the worker delivers them to the gateway hooks.
type EventHandler struct {
	queue  contracts.MessageQueue
	stream string
}

func NewEventHandler(queue contracts.MessageQueue, stream string) *EventHandler {
	return &EventHandler{queue: queue, stream: stream}
}

// Publish serves POST /internal/events.
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	var env domain.Envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Event == "" || len(env.Data) == 0 {
		log.WarnContext(r.Context(), "event handler - publish - malformed envelope")
		writeJSON(w, http.StatusBadRequest, domain.ErrorMessage{Code: "malformed_event", Message: domain.ErrMalformedEvent.Error()})
		return
	}
	if err := h.queue.PublishToStream(r.Context(), h.stream, body); err != nil {
		log.ErrorContext(r.Context(), "event handler - publish - stream write failed", logging.Event(env.Event), logging.Err(err))
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
