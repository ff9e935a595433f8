package events

import (
	"encoding/json"
	"log/slog"
)

// Event is a fan-out message pushed to dashboard clients. An empty CameraID
// means broadcast to every connection.
type Event struct {
	Type        string `json:"type"`
	CameraID    string `json:"cameraId,omitempty"`
	AlertID     string `json:"alertId,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
	SnapshotURL string `json:"snapshotUrl,omitempty"`
}

const EventAlert = "alert"

// Hub fan-outs events to the registry's matching connections.
type Hub struct {
	registry *Registry
	log      *slog.Logger
}

func NewHub(registry *Registry, log *slog.Logger) *Hub {
	return &Hub{registry: registry, log: log}
}

// Publish delivers evt to every eligible connection and returns without
// waiting for delivery. A connection whose send buffer is full is dropped
// from the registry; the remaining connections are unaffected.
func (h *Hub) Publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("event marshal failed", slog.String("err", err.Error()))
		return
	}

	var stale []uint64
	for _, target := range h.registry.matching(evt.CameraID) {
		select {
		case target.send <- payload:
		default:
			stale = append(stale, target.id)
		}
	}
	for _, id := range stale {
		h.registry.Unregister(id)
		h.log.Warn("dropped slow realtime connection", slog.Uint64("conn", id))
	}
}
