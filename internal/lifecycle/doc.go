// Package lifecycle names the process signals that stop a running cast.
// Commands pass them to signal.NotifyContext so an interrupt cancels the
// session context and the controller tears the session down.
package lifecycle
