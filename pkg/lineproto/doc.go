// Package lineproto multiplexes the board's text shell and its sample
// stream over one serial link.
//
// A Receiver owns the read side of the link. It splits the stream into
// carriage-return terminated lines and publishes them as typed messages:
// CLI responses on a bounded channel, samples as a latest-value slot with
// a one-slot wake channel and an optional capture buffer. A Client owns
// the write side and implements request/response on top of the Receiver.
package lineproto
