// Package starter launches daemons for the connector.
//
// ProcessStarter forks the hearth executable in daemon mode, detached into
// its own session so it outlives the client. EmbeddedStarter runs the daemon
// inside the calling process, which suits tests and single-shot tools that
// do not want a background process.
//
// Neither starter waits for readiness. The connector observes the new
// daemon through the registry.
package starter
