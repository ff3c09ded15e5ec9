// Package main hosts the hearth CLI entrypoint and command graph.
//
// The Cobra-based command tree finds or starts a compatible daemon
// (`hearth connect`), inspects and prunes the shared registry, stops daemons,
// and scaffolds configuration. The hidden `daemon` subcommand is what the
// process starter launches.
package main
