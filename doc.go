// Package simbank is the orchestration core of a synthetic banking data
// seeder. It decides when generation runs, what must be regenerated versus
// resumed, and guarantees cross-paradigm referential consistency and
// exactly-once production of each logical record across restarts, retries,
// and scheduled or missed runs.
//
// Simbank is designed as a library, not a service. Import it, configure a
// store, register entity generators, and start the task manager.
//
// # Architecture
//
// Simbank follows a composable store pattern where each subsystem (task,
// checkpoint, validation) defines its own store interface. A single backend
// implements all of them; memory, sqlite, and postgres backends ship with
// the library.
//
// Generated records fall into four paradigms: subject profiles, dimension
// archives, business documents, and behavioral events. Documents and events
// only ever reference subject identifiers produced earlier in the same task,
// and every generator is a deterministic function of its cursor and the
// task's random seed, so resuming from any checkpoint reproduces no
// duplicate and skips no gap.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package simbank
