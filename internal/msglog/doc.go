// Package msglog maintains the client-side ordered conversation log.
//
// The log reconciles streaming, replayed, and out-of-order delivery into a
// consistent total order:
//
//   - Upsert-by-id: a repeated id replaces content in place, so a streamed
//     assistant turn renders as one growing message.
//   - Ordered insertion: new ids append when at or past the tail, otherwise
//     binary-search insert by timestamp.
//   - Near-duplicate suppression: an identical insert arriving within a
//     short window of the previous one is dropped as a duplicate producer
//     call. Replay filtering happens upstream; this catches double
//     invocation from the caller.
//
// Entries seeded from the durable history endpoint go through the same
// ordered-insertion path as live entries.
package msglog
