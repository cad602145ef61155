// Package validation vets proposed tool calls before they reach a
// capability provider.
//
// # Pipeline
//
// A Pipeline is a sequential chain of independently pluggable validators
// selected from a fixed registry keyed by name. The standard chain, in
// order, is:
//
//	format          tool/server naming and prefix convention (hard errors only)
//	history         repetition after failure and rolling per-tool success rate
//	schema          required parameters, near-miss parameter name repair
//	capability_sync tool must exist in the provider catalog, similarity substitution
//
// A validator may approve, auto-correct, or reject. Hard errors
// short-circuit the chain when early rejection is enabled. Corrections
// accumulate across stages into Result.CorrectedCalls, which is set only
// when at least one correction was applied, so callers can tell "no
// corrections needed" apart from "passed after repair".
//
// # Metrics
//
// Per-stage call counts, success rates, and durations are exported as
// Prometheus metrics for operational visibility; they never influence
// control flow.
package validation
