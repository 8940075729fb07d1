// Package cycle implements a recursive, quality-gated cycle orchestrator.
//
// A cycle drives a task through a fixed four-phase sequence (Expand,
// Differentiate, Refine, Retrospect). Phases may recursively decompose into
// bounded-depth micro-cycles, each run by its own Coordinator sharing the
// parent's collaborators. A battery of termination heuristics decides when a
// recursive branch must stop, a transition engine decides when a phase may
// auto-advance (manual override, quality gate, explicit completion, timeout),
// and an aggregator merges and reconciles results produced by sibling
// branches.
//
// External collaborators (phase executor, store, team) are treated as slow
// and unreliable: store outages are logged and swallowed, team consensus
// failures are neutralized by a fault-isolating proxy, and executor failures
// can be recovered through registered recovery hooks. The only hard bounds on
// runaway work are the recursion depth limit and the auto-progress safety
// cap; both hold even when a misconfigured collaborator keeps reporting "not
// yet complete".
package cycle
