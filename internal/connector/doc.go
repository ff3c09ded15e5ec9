// Package connector finds, connects to, or starts a daemon compatible with a
// client's required context.
//
// The registry is an eventually consistent log written by other processes, so
// the connector never trusts it blindly: candidates that cannot be reached are
// removed and the search continues. A new daemon is started only after every
// compatible idle candidate has been tried, after which the connector polls
// the registry with backoff until the new daemon announces itself.
//
// Every failure wraps exactly one of ErrNoCompatibleDaemon, ErrSpawnFailure,
// ErrStartTimeout, or ErrTransport so callers can branch with errors.Is.
package connector
