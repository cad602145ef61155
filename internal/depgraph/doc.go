// Package depgraph keeps a todo list executable while items complete,
// fail, or get replanned mid-run.
//
// # Overview
//
// Graph is a derived, rebuildable view over a todo.List: forward edges
// (item -> its dependencies) and reverse edges (item -> its dependents).
// It is never persisted independently of the list that produced it and
// must be rebuilt whenever items are added or removed.
//
// The Resolver layers repair operations on top of the graph:
//
//   - cycle detection and enumeration (DFS with a recursion stack)
//   - weakest-link cycle breaking (remove the single lowest-importance edge)
//   - per-item dependency issue analysis (failed, replanned, skipped,
//     missing, blocking)
//   - atomic auto-resolution of the safe repairs
//   - ranked suggestions when auto-resolution is not safe
//
// The importance formula used for weakest-link selection is a documented
// heuristic, kept behind the ImportanceFunc policy hook rather than
// treated as a guaranteed-correct algorithm.
package depgraph
