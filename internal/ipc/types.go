package ipc

import (
	"time"

	"hearth/internal/daemoncontext"
)

// ServiceName is the JSON-RPC service every daemon registers.
const ServiceName = "Hearth"

// AcquireRequest asks the daemon to serve the caller exclusively.
type AcquireRequest struct {
	ClientPID int `json:"client_pid"`
}

// AcquireResponse reports the daemon context and whether it was acquired.
// Busy is set when another client holds the daemon.
type AcquireResponse struct {
	Acquired bool                  `json:"acquired"`
	Busy     bool                  `json:"busy"`
	Context  daemoncontext.Context `json:"context"`
}

// ReleaseRequest returns the daemon to the idle pool.
type ReleaseRequest struct{}

// ReleaseResponse indicates whether this session held the daemon.
type ReleaseResponse struct {
	Released bool `json:"released"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse describes the daemon.
type StatusResponse struct {
	Address string                `json:"address"`
	Context daemoncontext.Context `json:"context"`
	State   string                `json:"state"`
	Since   time.Time             `json:"since"`
	Clients int                   `json:"clients"`
}

// PingRequest checks liveness.
type PingRequest struct{}

// PingResponse identifies the answering daemon.
type PingResponse struct {
	UID string `json:"uid"`
	PID int    `json:"pid"`
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges the stop request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}
