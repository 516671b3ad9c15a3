// Package history fetches the durable conversation record used to seed the
// message log before the live session opens. One request/response call at
// session start; seeded entries take the same ordered-insertion path as
// live entries.
package history
