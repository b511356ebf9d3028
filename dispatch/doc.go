// Package dispatch implements the coordinator for agent dispatch: the
// agent registry and purpose pools, the routing policy engine, and the
// session lifecycle manager.
//
// The package consists of several key components:
//
//   - Coordinator: single mutual-exclusion domain owning all agent,
//     pool, and session state; constructed once and passed by reference
//   - Registry operations: register, spawn-on-demand, decommission
//   - Router: strategy-based agent selection (least-load,
//     nearest-location, highest-rating, round-robin)
//   - Session manager: create, complete, abandon, handoff, and
//     migration off decommissioned agents
//   - EventBus: fire-and-forget notifications for external observers
//
// Every mutating operation runs under the coordinator's lock, so
// operations touching the same agent or session are linearizable.
// Read-only queries run under a read lock and return deep copies.
package dispatch
