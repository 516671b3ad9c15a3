// Package readiness waits out a provisioning backend. After the session
// socket closes with the not-ready code, the poller watches the gateway
// status endpoint and signals when a reconnect is worth attempting.
package readiness
