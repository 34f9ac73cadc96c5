// Package protocol owns the chat wire contract and message codecs.
//
// Ownership boundary:
// - fixed field layout (usernames, tokens, length prefixes, status codes)
// - one codec per message kind
// - method tag registry and packet pack/unpack entry points
package protocol
