// Package todo defines the task decomposition data model.
//
// # Overview
//
// A high-level request is decomposed into an ordered List of Items. Each
// Item carries a hierarchical ID ("3", "3.1"), an action description,
// success criteria, and the IDs of the items it depends on. Items move
// through a small status machine (pending -> in_progress -> completed/
// failed/skipped/replanned) driven by the orchestrator and the dependency
// resolver; nothing else mutates them.
//
// # Hierarchical IDs
//
// String IDs are the boundary representation. Traversal uses ItemID, which
// resolves a string into explicit segments with parent/child helpers, so
// prefix string matching never becomes the primary data structure.
//
// # Ownership
//
// A List belongs to exactly one orchestration run and is discarded after
// the run summary is produced. Items are never destroyed while another
// item's Dependencies slice references them; list-level teardown is the
// only destructor.
package todo
