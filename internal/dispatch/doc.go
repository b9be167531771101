// Package dispatch executes named commands against one device: it looks the
// command up in a table, encodes it for the table's dialect, performs one
// exclusive send/receive exchange on the injected transport and decodes the
// reply.
package dispatch
