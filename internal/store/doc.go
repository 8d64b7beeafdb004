// ABOUTME: Abstract append-only log store keyed by guild, with two reference backings
// ABOUTME: memstore is a process-memory map; boltstore persists to an ordered key-value log
package store
