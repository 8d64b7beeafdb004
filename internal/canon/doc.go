// ABOUTME: Deterministic canonical JSON encoding for event hashing and signatures
// ABOUTME: Sorted keys, compact separators, escaped non-ASCII, no -0/NaN/Infinity
package canon
