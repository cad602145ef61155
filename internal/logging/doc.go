// Package logging wraps zap with context-aware field injection.
//
// Correlation data travels in the context: the run ID, the todo item
// ID, and the active mode. Every context-aware log method extracts
// those plus OpenTelemetry trace correlation and appends them to the
// entry, so call sites never thread identifiers by hand.
//
// There is no global logger; construct one in main and pass it down.
package logging
