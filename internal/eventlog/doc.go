// ABOUTME: Typed guild event bodies, event-id/signature digests, and chain validation
// ABOUTME: Mirrors the tagged-union event model shared by every guild log

// Publishes carry no nonce and are not deduplicated by content: two
// identical publishes are sequenced as two distinct events.
package eventlog
