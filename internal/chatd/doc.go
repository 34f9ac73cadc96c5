// Package chatd is the relay server clients sign up, verify and chat through.
//
// Ownership boundary:
// - in-memory accounts and online routing
// - per-connection read loop and message relay
// - admin HTTP surface (health, readiness, metrics, users)
package chatd
