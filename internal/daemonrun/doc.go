// Package daemonrun hosts the daemon process started by `hearth daemon`.
package daemonrun
