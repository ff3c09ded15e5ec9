package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"hearth/internal/config"
	"hearth/internal/daemoncontext"
	"hearth/internal/ipc"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

// ErrBusy is returned by Acquire when the daemon is not idle.
var ErrBusy = errors.New("daemon busy")

const registryTimeout = 5 * time.Second

// Daemon owns one registry entry and the IPC server behind it.
type Daemon struct {
	cfg     *config.Config
	reg     registry.Registry
	logger  *slog.Logger
	context daemoncontext.Context

	lockPath    string
	lock        *flock.Flock
	idleTimeout time.Duration

	mu      sync.Mutex
	state   registry.State
	since   time.Time
	address string
	server  *ipc.Server

	running  atomic.Bool
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Context daemoncontext.Context
	Address string
	State   registry.State
	Since   time.Time
	Clients int
}

// New constructs a daemon for dctx. The context must carry a UID; a zero PID
// is filled with the current process id.
func New(cfg *config.Config, reg registry.Registry, dctx daemoncontext.Context, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || reg == nil {
		return nil, errors.New("daemon requires config and registry")
	}
	if dctx.UID == "" {
		return nil, errors.New("daemon context requires a uid")
	}
	if dctx.PID == 0 {
		dctx.PID = os.Getpid()
	}
	lockPath := filepath.Join(cfg.Paths.RuntimeDir, "daemon-"+dctx.UID+".lock")
	return &Daemon{
		cfg:         cfg,
		reg:         reg,
		logger:      logging.NewComponentLogger(logger, "daemon").With(logging.String(logging.FieldDaemonUID, dctx.UID)),
		context:     dctx,
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
		idleTimeout: cfg.IdleTimeout(),
		done:        make(chan struct{}),
	}, nil
}

// Start listens, registers the daemon as starting, serves IPC, and marks
// it idle.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}
	started := false
	defer func() {
		if !started {
			d.running.Store(false)
		}
	}()

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("daemon %s is already running", d.context.UID)
	}

	listener, address, err := ipc.Listen(d.listenAddress())
	if err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.setState(registry.StateStarting, address)
	entry := registry.Entry{Address: address, Context: d.context, State: registry.StateStarting}
	if err := d.reg.Store(ctx, entry); err != nil {
		_ = listener.Close()
		_ = d.lock.Unlock()
		return fmt.Errorf("register daemon: %w", err)
	}

	serveCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	server, err := ipc.NewServer(serveCtx, listener, address, backend{d}, d.logger)
	if err != nil {
		cancel()
		_ = listener.Close()
		_ = d.reg.Remove(context.WithoutCancel(ctx), address)
		_ = d.lock.Unlock()
		return err
	}
	d.mu.Lock()
	d.server = server
	d.cancel = cancel
	d.mu.Unlock()
	server.Serve()

	if err := d.transition(ctx, registry.StateIdle); err != nil {
		d.Stop()
		return fmt.Errorf("mark daemon idle: %w", err)
	}
	started = true
	go d.watchIdle(serveCtx)

	d.logger.Info("daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String(logging.FieldAddress, address),
		logging.Int(logging.FieldPID, d.context.PID),
		logging.String("context", d.context.String()))
	return nil
}

func (d *Daemon) listenAddress() string {
	if d.cfg.Daemon.Transport == config.TransportTCP {
		return ipc.FormatAddress(ipc.NetworkTCP, "127.0.0.1:0")
	}
	return ipc.FormatAddress(ipc.NetworkUnix, filepath.Join(d.cfg.Paths.RuntimeDir, "daemon-"+d.context.UID+".sock"))
}

// Acquire moves the daemon from idle to busy.
func (d *Daemon) Acquire() error {
	d.mu.Lock()
	if d.state != registry.StateIdle {
		d.mu.Unlock()
		return ErrBusy
	}
	d.state = registry.StateBusy
	d.since = time.Now()
	d.mu.Unlock()
	d.publish(registry.StateBusy)
	return nil
}

// Release returns a busy daemon to idle. It is a no-op in any other state.
func (d *Daemon) Release() {
	d.mu.Lock()
	if d.state != registry.StateBusy {
		d.mu.Unlock()
		return
	}
	d.state = registry.StateIdle
	d.since = time.Now()
	d.mu.Unlock()
	d.publish(registry.StateIdle)
}

// Stop marks the daemon stopped, closes the server, and removes its entry.
// It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		address := d.address
		server := d.server
		cancel := d.cancel
		d.state = registry.StateStopped
		d.since = time.Now()
		d.mu.Unlock()

		ctx, done := context.WithTimeout(context.Background(), registryTimeout)
		defer done()
		if address != "" {
			if err := d.reg.MarkState(ctx, address, registry.StateStopped); err != nil && !errors.Is(err, registry.ErrEntryNotFound) {
				d.warnRegistry("mark stopped", err)
			}
		}
		if cancel != nil {
			cancel()
		}
		if server != nil {
			server.Close()
		}
		if address != "" {
			if err := d.reg.Remove(ctx, address); err != nil {
				d.warnRegistry("remove entry", err)
			}
		}
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
		_ = os.Remove(d.lockPath)
		d.running.Store(false)
		close(d.done)
		d.logger.Info("daemon stopped",
			logging.String(logging.FieldEventType, "daemon_stopped"),
			logging.String(logging.FieldAddress, address))
	})
}

// Done is closed once Stop completes.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Address returns the registered address, empty before Start.
func (d *Daemon) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.address
}

// Context returns the daemon context.
func (d *Daemon) Context() daemoncontext.Context {
	return d.context
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := Status{
		Context: d.context,
		Address: d.address,
		State:   d.state,
		Since:   d.since,
	}
	if d.server != nil {
		status.Clients = d.server.Clients()
	}
	return status
}

func (d *Daemon) setState(state registry.State, address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
	d.since = time.Now()
	if address != "" {
		d.address = address
	}
}

func (d *Daemon) transition(ctx context.Context, state registry.State) error {
	d.setState(state, "")
	return d.reg.MarkState(ctx, d.Address(), state)
}

// publish mirrors a local state change into the registry. Failures are
// logged; the local state stays authoritative for the IPC session.
func (d *Daemon) publish(state registry.State) {
	ctx, cancel := context.WithTimeout(context.Background(), registryTimeout)
	defer cancel()
	if err := d.reg.MarkState(ctx, d.Address(), state); err != nil {
		d.warnRegistry("mark "+string(state), err)
		return
	}
	d.logger.Debug("daemon state changed", logging.String(logging.FieldState, string(state)))
}

func (d *Daemon) warnRegistry(action string, err error) {
	logging.WarnWithContext(d.logger, "registry update failed", "daemon_registry_update_failed",
		logging.String("action", action),
		logging.Error(err),
		logging.String(logging.FieldImpact, "clients may see a stale daemon state"),
		logging.String(logging.FieldErrorHint, "check registry directory permissions"))
}

// watchIdle stops the daemon once it has been idle for idleTimeout.
func (d *Daemon) watchIdle(ctx context.Context) {
	if d.idleTimeout <= 0 {
		return
	}
	interval := d.idleTimeout / 4
	if interval > 30*time.Second {
		interval = 30 * time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := d.Status()
			if status.State != registry.StateIdle || time.Since(status.Since) < d.idleTimeout {
				continue
			}
			d.logger.Info("daemon idle timeout reached; stopping",
				logging.String(logging.FieldEventType, "daemon_idle_expired"),
				logging.Duration("idle_timeout", d.idleTimeout))
			go d.Stop()
			return
		}
	}
}
