package daemon

import (
	"hearth/internal/daemoncontext"
	"hearth/internal/ipc"
)

// backend adapts a Daemon to the IPC server.
type backend struct {
	d *Daemon
}

func (b backend) Context() daemoncontext.Context { return b.d.Context() }

func (b backend) TryAcquire() bool { return b.d.Acquire() == nil }

func (b backend) Release() { b.d.Release() }

func (b backend) RequestStop() { b.d.Stop() }

func (b backend) Status() ipc.StatusResponse {
	status := b.d.Status()
	return ipc.StatusResponse{
		Address: status.Address,
		Context: status.Context,
		State:   string(status.State),
		Since:   status.Since,
		Clients: status.Clients,
	}
}
