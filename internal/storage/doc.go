// Package storage persists engine settings and the delivery history.
//
// Drivers:
//   - "file": settings snapshot (JSON) plus an append-only history journal (JSON Lines)
//   - "sqlite": one database file (modernc.org/sqlite, no cgo)
//
// An empty driver or "none" disables storage; Open then returns (nil, nil).
package storage
