// Package session owns the client side of a chat connection.
//
// Ownership boundary:
// - framed send/receive over one transport (Conn)
// - signup and verify exchanges
// - peer connect handshake and chat persistence (Client)
//
// Conn is shared with the relay server; Client is single-owner.
package session
