// Package bridge holds the vocabulary shared by every layer of the simulation
// bridge: the sentinel errors and the protocol error wrapper.
//
// The bridge connects a consuming process (scheduling, object registry,
// fragmentation) to an independent simulation process that owns physics
// integration. The pieces live in sibling packages:
//
//   - layout: the shared numeric buffer and its per-category slots
//   - protocol: messages, events and the event router
//   - schedule: the single-in-flight step scheduler
//   - registry: the name-keyed directory of live objects
//   - fracture: recursive convex fragmentation
//   - session: the orchestrator tying them together
//
// # Error taxonomy
//
// Setup faults are returned to the caller. Protocol faults are logged and
// dropped. Stale references (an event naming an object that is already gone)
// are silent no-ops. Skipped ticks are steady-state behavior and never errors.
package bridge
