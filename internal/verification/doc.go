// Package verification decides whether an executed todo item actually
// met its success criteria.
//
// # Composite strategy
//
// Verification methods form a closed set of tagged variants held in a
// fixed registry keyed by name. The composite verifier tries the most
// specific applicable method first (visual, then tool, then reasoning)
// and accepts immediately when a method reports verified=true with
// confidence at or above its own threshold (90 visual, 80 tool).
// Otherwise every attempted method contributes a weighted vote
// (visual 1.5, tool 1.2, reasoning 1.0) and the item passes only when
// the verified votes carry the weighted majority.
//
// # Evidence timing
//
// Evidence is captured after a fixed pause tuned by action type; actions
// that open external applications get the longest settle time.
//
// Results are cached in a bounded TTL store owned by the composite, so
// a replanning pass does not re-verify identical evidence.
package verification
