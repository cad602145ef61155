// Package orchestrator executes a decomposed todo list to completion.
//
// # Cycle
//
// Each ready item runs through select, plan, validate, execute, and
// verify. A failed stage records a structured failure on the item and
// hands it to replanning, which decides between retry, decompose into
// child items, skip, or terminal failure. Stage errors never abort
// sibling items; only an unresolvable dependency cycle ends the run
// early.
//
// # Scheduling
//
// Items run in waves. A wave is the set of items whose dependencies
// are all completed; members of a wave may run concurrently, but the
// stages of one item are strictly sequential. Between waves the
// dependency graph is rebuilt so decomposed children and auto-resolved
// dependency issues take effect.
//
// Every run that is not structurally aborted ends with a Summary.
package orchestrator
