// Package transcript caches the session log in a local SQLite database so
// a conversation can be reviewed after the process exits. The session
// manager writes through it as entries land; readers get timestamp order.
package transcript
