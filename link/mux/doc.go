// Package mux implements the connection registry used when one process
// services many concurrent logical connections over independent transports.
// It is optional infrastructure: single-connection callers use the conn
// package directly.
//
// The package focuses on:
//   - Tracking live connections under their unique identifiers
//   - Safe concurrent registration, lookup and removal from many connection
//     lifecycles without a global lock held across I/O
//   - Best-effort broadcast that continues past individual failures and
//     reports them aggregated
//
// Key Components:
//
//   - Registry: the id -> connection map. Removal is permanent; identifiers
//     are never reused.
package mux
