// Package backoff decides when and whether the session reconnects.
//
// Three close classes drive recovery:
//
//   - Normal: requested by the client. No retry.
//   - Not-ready (close code 4503): the execution environment is still
//     provisioning. Excluded from backoff; an external readiness poller
//     decides when to re-attempt, preventing a reconnect storm against a
//     backend known not to be listening.
//   - Transient: everything else. Retried with exponential delay (doubling
//     from the initial delay up to a ceiling) under a strict attempt budget.
//     When the budget is spent the session fails terminally; it never
//     silently retries forever.
package backoff
