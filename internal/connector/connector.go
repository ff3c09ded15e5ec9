package connector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"hearth/internal/daemoncontext"
	"hearth/internal/logging"
	"hearth/internal/registry"
)

// Channel is an open connection to one daemon, owned by the caller until Close.
type Channel interface {
	Close() error
}

// ContextReporter is implemented by channels whose daemon reported its
// context during the handshake.
type ContextReporter interface {
	DaemonContext() daemoncontext.Context
}

// Transport opens channels to daemon addresses.
type Transport interface {
	Connect(ctx context.Context, address string, timeout time.Duration) (Channel, error)
}

// Starter launches a daemon for the wanted context. It returns once the
// process exists; readiness is observed through the registry.
type Starter interface {
	Start(ctx context.Context, want daemoncontext.Context) error
}

// Connection is a usable channel to a compatible daemon.
type Connection struct {
	Address string
	Context daemoncontext.Context
	Channel Channel
}

// Close releases the daemon.
func (c *Connection) Close() error {
	if c == nil || c.Channel == nil {
		return nil
	}
	return c.Channel.Close()
}

// Phase names the connector state for logs.
type Phase string

const (
	PhaseSearching  Phase = "searching"
	PhaseConnecting Phase = "connecting"
	PhaseStarting   Phase = "starting"
	PhaseConnected  Phase = "connected"
	PhaseFailed     Phase = "failed"
)

// Connector orchestrates search, connect, and start.
type Connector struct {
	registry  registry.Registry
	transport Transport
	starter   Starter
	opts      Options
	logger    *slog.Logger
}

// New constructs a Connector. A nil starter disables spawning; Connect then
// fails with ErrNoCompatibleDaemon when no candidate is reachable.
func New(reg registry.Registry, transport Transport, starter Starter, opts Options, logger *slog.Logger) *Connector {
	return &Connector{
		registry:  reg,
		transport: transport,
		starter:   starter,
		opts:      opts.withDefaults(),
		logger:    logging.NewComponentLogger(logger, "connector"),
	}
}

// Connect returns a connection to a compatible idle daemon, starting one when
// none can be reached.
func (c *Connector) Connect(ctx context.Context, required daemoncontext.Context) (*Connection, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	a := c.newAttempt(required)
	conn, err := a.search(ctx)
	if conn != nil || err != nil {
		return conn, err
	}
	if c.starter == nil {
		return nil, a.fail(ErrNoCompatibleDaemon, "no idle daemon matches and starting is disabled", a.lastErr)
	}
	return a.startAndConnect(ctx)
}

// Find connects to an existing compatible daemon without starting one.
func (c *Connector) Find(ctx context.Context, required daemoncontext.Context) (*Connection, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	a := c.newAttempt(required)
	conn, err := a.search(ctx)
	if conn != nil || err != nil {
		return conn, err
	}
	return nil, a.fail(ErrNoCompatibleDaemon, "no idle daemon matches", a.lastErr)
}

func (c *Connector) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.opts.Deadline <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.opts.Deadline)
}

func (c *Connector) newAttempt(required daemoncontext.Context) *attempt {
	spec := daemoncontext.NewCompatibilitySpec(required)
	return &attempt{
		c:        c,
		required: required,
		spec:     spec,
		tried:    make(map[string]struct{}),
		logger:   c.logger.With(logging.String("spec", spec.String())),
	}
}

type outcome int

const (
	outcomeConnected outcome = iota
	outcomeUnreachable
	outcomeBusy
	outcomeMismatch
	outcomeReplaced
	outcomeFailed
	outcomeCancelled
)

// attempt carries the state of one Connect or Find call.
type attempt struct {
	c        *Connector
	required daemoncontext.Context
	spec     daemoncontext.CompatibilitySpec
	tried    map[string]struct{}
	failures int
	lastErr  error
	logger   *slog.Logger
}

// search tries every compatible idle entry, freshest first, removing the
// ones that prove stale. It returns (nil, nil) once candidates run out.
func (a *attempt) search(ctx context.Context) (*Connection, error) {
	a.logger.Debug("searching registry", logging.String(logging.FieldEventType, string(PhaseSearching)))
	for {
		candidates, err := a.candidates(ctx, registry.StateIdle)
		if err != nil {
			return nil, a.cancelled(ErrNoCompatibleDaemon, err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}
		for _, entry := range candidates {
			a.tried[entry.Address] = struct{}{}
			conn, result := a.try(ctx, entry)
			switch result {
			case outcomeConnected:
				return conn, nil
			case outcomeUnreachable, outcomeMismatch:
				a.removeStale(ctx, entry)
			case outcomeFailed:
				if a.failures >= a.c.opts.RetryBudget {
					return nil, a.exhausted()
				}
			case outcomeCancelled:
				return nil, a.cancelled(ErrNoCompatibleDaemon, ctx.Err())
			}
		}
	}
}

// startAndConnect launches one daemon and polls the registry until a
// compatible entry accepts a connection.
func (a *attempt) startAndConnect(ctx context.Context) (*Connection, error) {
	a.logger.Info("no compatible idle daemon; starting a new one",
		logging.String(logging.FieldEventType, string(PhaseStarting)))
	if err := a.c.starter.Start(ctx, a.required); err != nil {
		a.logger.Error("daemon start failed",
			logging.String(logging.FieldEventType, string(PhaseFailed)),
			logging.Error(err))
		return nil, a.fail(ErrSpawnFailure, "starter failed", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, a.c.opts.StartTimeout)
	defer cancel()

	interval := a.c.opts.PollInterval
	polls := 0
	for {
		polls++
		candidates, err := a.candidates(startCtx, registry.StateIdle, registry.StateStarting)
		if err != nil {
			return nil, a.startTimedOut(polls, err)
		}
		for _, entry := range candidates {
			conn, result := a.try(startCtx, entry)
			switch result {
			case outcomeConnected:
				return conn, nil
			case outcomeUnreachable:
				// A starting daemon may not be listening yet; an idle one claims to be.
				if entry.State == registry.StateIdle {
					a.tried[entry.Address] = struct{}{}
					a.removeStale(ctx, entry)
				}
			case outcomeMismatch:
				a.tried[entry.Address] = struct{}{}
				a.removeStale(ctx, entry)
			case outcomeReplaced:
				a.tried[entry.Address] = struct{}{}
			case outcomeBusy:
				// A starting daemon refuses clients until it turns idle.
				if entry.State == registry.StateIdle {
					a.tried[entry.Address] = struct{}{}
				}
			case outcomeFailed:
				if a.failures >= a.c.opts.RetryBudget {
					return nil, a.exhausted()
				}
			case outcomeCancelled:
				return nil, a.startTimedOut(polls, startCtx.Err())
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-startCtx.Done():
			timer.Stop()
			return nil, a.startTimedOut(polls, startCtx.Err())
		case <-timer.C:
		}
		interval *= 2
		if interval > a.c.opts.MaxPollInterval {
			interval = a.c.opts.MaxPollInterval
		}
	}
}

// candidates lists untried compatible entries in the given states. Idle
// entries come before starting ones, each group freshest first.
func (a *attempt) candidates(ctx context.Context, states ...registry.State) ([]registry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := a.c.registry.List(ctx)
	if err != nil {
		return nil, err
	}
	rank := make(map[registry.State]int, len(states))
	for i, s := range states {
		rank[s] = i
	}
	out := make([]registry.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := rank[e.State]; !ok {
			continue
		}
		if _, seen := a.tried[e.Address]; seen {
			continue
		}
		if !a.spec.Matches(e.Context) {
			continue
		}
		out = append(out, e)
	}
	registry.SortByFreshness(out)
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].State] < rank[out[j].State] })
	return out, nil
}

func (a *attempt) try(ctx context.Context, entry registry.Entry) (*Connection, outcome) {
	log := a.logger.With(
		logging.String(logging.FieldAddress, entry.Address),
		logging.String(logging.FieldDaemonUID, entry.Context.UID),
		logging.String(logging.FieldState, string(entry.State)))
	log.Debug("connecting to daemon", logging.String(logging.FieldEventType, string(PhaseConnecting)))

	channel, err := a.c.transport.Connect(ctx, entry.Address, a.c.opts.ConnectTimeout)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			a.lastErr = err
			return nil, outcomeCancelled
		case errors.Is(err, ErrCandidateBusy):
			log.Debug("daemon busy; trying next candidate", logging.Error(err))
			return nil, outcomeBusy
		case errors.Is(err, ErrUnreachable):
			a.lastErr = err
			log.Debug("daemon unreachable", logging.Error(err))
			return nil, outcomeUnreachable
		default:
			a.failures++
			a.lastErr = err
			logging.WarnWithContext(log, "daemon connection failed", "daemon_connect_failed",
				logging.Error(err),
				logging.Int(logging.FieldAttempt, a.failures),
				logging.String(logging.FieldImpact, "connector retries remaining candidates"),
				logging.String(logging.FieldErrorHint, "check the daemon log for protocol errors"))
			return nil, outcomeFailed
		}
	}

	reported := entry.Context
	if reporter, ok := channel.(ContextReporter); ok {
		reported = reporter.DaemonContext()
		if !a.spec.Matches(reported) {
			_ = channel.Close()
			if reported.UID != entry.Context.UID {
				// Another daemon took over the address; its own entry may already
				// be the one listed under it, so leave the registry alone.
				log.Info("address now served by a different daemon; skipping",
					logging.String("reported_uid", reported.UID))
				return nil, outcomeReplaced
			}
			log.Info("daemon at address no longer matches its registry entry",
				logging.String("reported_uid", reported.UID))
			return nil, outcomeMismatch
		}
	}

	log.Info("connected to daemon",
		logging.String(logging.FieldEventType, string(PhaseConnected)),
		logging.Int(logging.FieldPID, reported.PID))
	return &Connection{Address: entry.Address, Context: reported, Channel: channel}, outcomeConnected
}

// removeStale deletes an entry proven unreachable. Removal uses the parent
// context so a nearly expired poll window still cleans up.
func (a *attempt) removeStale(ctx context.Context, entry registry.Entry) {
	if err := a.c.registry.Remove(context.WithoutCancel(ctx), entry.Address); err != nil {
		logging.WarnWithContext(a.logger, "failed to remove stale daemon entry", "stale_daemon_remove_failed",
			logging.String(logging.FieldAddress, entry.Address),
			logging.Error(err),
			logging.String(logging.FieldImpact, "later clients will probe the dead daemon again"),
			logging.String(logging.FieldErrorHint, "run `hearth prune`"))
		return
	}
	a.logger.Info("removed stale daemon entry",
		logging.String(logging.FieldEventType, "stale_daemon_removed"),
		logging.String(logging.FieldAddress, entry.Address),
		logging.String(logging.FieldDaemonUID, entry.Context.UID))
}

func (a *attempt) exhausted() error {
	a.logger.Error("daemon connection retry budget exhausted",
		logging.String(logging.FieldEventType, string(PhaseFailed)),
		logging.Int(logging.FieldAttempt, a.failures),
		logging.Error(a.lastErr))
	return a.fail(ErrTransport, "retry budget exhausted", a.lastErr)
}

// cancelled maps an interrupted search onto a failure kind: transport
// trouble if any connection failed, otherwise no compatible daemon.
func (a *attempt) cancelled(kind error, cause error) error {
	if a.failures > 0 {
		kind = ErrTransport
	}
	return a.fail(kind, "search interrupted", errors.Join(cause, a.lastErr))
}

func (a *attempt) startTimedOut(polls int, cause error) error {
	a.logger.Error("started daemon never became reachable",
		logging.String(logging.FieldEventType, string(PhaseFailed)),
		logging.Int("polls", polls),
		logging.Duration("start_timeout", a.c.opts.StartTimeout))
	return a.fail(ErrStartTimeout, "waited for daemon registration", errors.Join(cause, a.lastErr))
}

func (a *attempt) fail(kind error, detail string, cause error) error {
	return failure(kind, detail+" ("+a.spec.String()+")", cause)
}
