// Package provider defines the contracts for the engine's external
// collaborators: the reasoning provider that produces plans,
// verifications, and replans, and the capability providers (tool
// servers) that execute actions.
//
// The engine never calls a reasoner directly; every round-trip goes
// through the admission layer via Admitted, which adds deduplication,
// batching, adaptive throttling, and bounded retries on top of any
// Reasoner implementation.
//
// Concrete reasoners live in the anthropic and openai subpackages;
// the mcptool subpackage adapts MCP tool servers to Capability.
package provider
