// ABOUTME: Periodic prune and checkpoint loops, one timer each, tolerant of
// ABOUTME: per-guild failures so one corrupt or slow guild never stalls the rest
package retention
