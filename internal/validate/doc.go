// ABOUTME: Permission and eligibility predicate run between signature check and append
// ABOUTME: ValidateEvent never touches storage; it only reads a GuildState snapshot
package validate
