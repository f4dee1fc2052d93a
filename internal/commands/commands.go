package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mesh-mac-simulation/internal/frame"
	"mesh-mac-simulation/internal/metrics"
	"mesh-mac-simulation/internal/sim"
)

// Injector queues a frame inside a running simulation. *sim.Runner
// implements it.
type Injector interface {
	InjectFrame(ctx context.Context, src, dst frame.Address, payload []byte) error
}

// Snapshotter is the read side of the metrics collector.
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

var ErrBadRequest = errors.New("bad request")

// SendFramePayload asks node_id to send message to dest_node_id. A
// dest_node_id of "broadcast" or "" reaches every node in range.
type SendFramePayload struct {
	SenderNodeID      string `json:"node_id"`
	DestinationNodeID string `json:"dest_node_id"`
	Message           string `json:"message"`
}

// Parse resolves the payload's addresses.
func (p SendFramePayload) Parse() (src, dst frame.Address, err error) {
	src, err = frame.ParseAddress(p.SenderNodeID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: node_id: %w", ErrBadRequest, err)
	}
	switch strings.ToLower(strings.TrimSpace(p.DestinationNodeID)) {
	case "", "broadcast":
		dst = frame.Broadcast
	default:
		dst, err = frame.ParseAddress(p.DestinationNodeID)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: dest_node_id: %w", ErrBadRequest, err)
		}
	}
	return src, dst, nil
}

// SendFrame decodes a send request and hands it to the simulation.
func SendFrame(ctx context.Context, inj Injector, body []byte) error {
	var p SendFramePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	src, dst, err := p.Parse()
	if err != nil {
		return err
	}
	return inj.InjectFrame(ctx, src, dst, []byte(p.Message))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, frame.ErrFrameTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrUnknownNode):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// SendFrameHandler serves POST /nodeAPI/send.
func SendFrameHandler(inj Injector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<16))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := SendFrame(r.Context(), inj, body); err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("Frame queued"))
	}
}

// ReportHandler serves the collector's current snapshot as JSON.
func ReportHandler(s Snapshotter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
