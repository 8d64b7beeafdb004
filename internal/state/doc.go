// ABOUTME: Deterministic, structurally-shared reducer over a guild's event log
// ABOUTME: CreateInitialState seeds from genesis; ApplyEvent folds one event at a time
package state
