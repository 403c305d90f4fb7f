// Package engine is the Forge facade: an entity arena bound to a schema.
//
// The engine resolves field values (derived formulas and modifier stacks),
// applies mutations, and turns each mutation into an event. Events go to
// the bus first and then to the rule engine, whose effects call back into
// the engine. The package performs no I/O.
//
// ARCHITECTURE:
//
// Value reads:
//
//	GetValue          -> stored value | field default | derived formula
//	GetEffectiveValue -> GetValue, then modifier.Apply when numeric
//
// Mutations:
//
//	SetValue / AddModifier / RemoveModifier / Trigger / Roll
//	  -> entity state change
//	  -> dispatch: stamp seq, bus.Emit, rules.ExecuteForEvent
//	  -> effects re-enter the engine with the same context
//
// CONCURRENCY:
//
// Every operation is synchronous. Mutation is serialised per entity by a
// lock map. A lock is re-entrant within one cascade because the set of held
// entity locks travels in the context, so an effect that writes its own
// entity does not deadlock. Bus listeners that call back into the engine
// must pass on the context they were given. The arena map has its own
// RWMutex, and the schema is read-only after New.
//
// CASCADES:
//
// A cascade is bounded by the rule engine's guard (depth, steps and
// identical-firing detection). A guard trip is returned as a *RuntimeError
// from the call that started the cascade.
package engine
