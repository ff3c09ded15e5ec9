// Package preflight provides readiness checks for the filesystem paths and
// executables that hearth depends on.
//
// These checks run in two contexts:
//   - The process starter calls CheckExecutable before spawning a daemon so a
//     missing or non-executable binary fails fast as a spawn failure.
//   - The CLI "hearth doctor" command runs RunAll to display health.
package preflight
