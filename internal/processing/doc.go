// Package processing fans the "agent is working" signal out to every
// observer of a logical session.
//
// The connection manager publishes processing_state envelopes here as they
// arrive; any number of UI surfaces observing the same session subscribe and
// render a working indicator. This channel is explicitly a best-effort UI
// affordance, not conversation state: nothing is persisted and the only
// ordering is envelope-arrival order.
package processing
