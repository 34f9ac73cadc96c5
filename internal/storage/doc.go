// Package storage owns the client's on-disk profile.
//
// Ownership boundary:
// - profile layout (username, token, peer list, per-peer logs)
// - append-only per-peer ConnectionLog
// - ConnectionIndex kept in step with the peer list and log files
//
// Layout under the profile root:
//
//	username          50-byte username record
//	token             32-byte token
//	connections-list  one 50-byte username record per peer, establishment order
//	connections/      one conn_<sha256(username)> log per peer
//
// Nothing here is safe for concurrent use. One client process owns a profile.
package storage
