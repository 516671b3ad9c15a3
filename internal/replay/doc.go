// Package replay tracks delivery progress across reconnects.
//
// The Tracker maintains the replay cursor (last delivered message id plus
// buffer offset), advancing by exactly one for every non-replay,
// log-contributing envelope. At reconnect time the connection manager sends
// the cursor so the server can replay the gap; the server guarantees
// at-least-once delivery from that point.
//
// The SeenCache covers the "at-least-once" slack: replayed envelope ids that
// were already dispatched get skipped so handlers are not notified twice.
package replay
