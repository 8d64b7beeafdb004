// ABOUTME: Sequencing engine: the single authority that assigns seq/prevHash,
// ABOUTME: validates, appends, and broadcasts events for every guild
package engine
