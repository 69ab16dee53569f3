// Package store abstracts the durable key-value store that holds license
// and usage state. The interface is deliberately narrow: plain get/set,
// atomic counters with per-key expiry, and set membership. Redis backs it
// in production; MemoryStore backs tests and local development.
package store
