// Package serial provides scoped access to the serial ports a board
// appears on, and detection of newly attached ports.
//
// A Link owns one open port for one stage of a board session. Close is
// idempotent so a deferred Close and a forced close on the failure path
// can coexist. Reads follow go.bug.st/serial semantics: a read timeout
// returns zero bytes and no error.
package serial
