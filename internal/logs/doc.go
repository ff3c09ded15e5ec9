// Package logs locates and tails daemon log files for the CLI.
//
// Each daemon writes daemon-<uid>.log in the log directory and points the
// daemon.log link at the newest file. Resolve maps a (possibly shortened) uid
// to its file; Last, ReadFrom, and Follow read lines with bounded memory.
package logs
