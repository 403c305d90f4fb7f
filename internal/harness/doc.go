// Package harness runs YAML scenarios against the Forge engine.
//
// A scenario names a schema, creates entities, drives them through a list
// of steps, and asserts on the final values and on the trace of emitted
// events.
//
// # Scenario Format
//
//	name: bloodied_and_down
//	description: "Damage marks the hero bloodied, then down"
//	schema: ../schemas/character.yaml
//	dice: [15]
//	entities:
//	  - id: hero-1
//	    type: character
//	    values: { str: 14 }
//	steps:
//	  - action: set_value
//	    entity: hero-1
//	    field: hp
//	    value: 12
//	  - action: trigger
//	    entity: hero-1
//	    event: onAttack
//	assertions:
//	  - type: value
//	    entity: hero-1
//	    field: status
//	    equals: bloodied
//	  - type: event_order
//	    events: [onAttack, onRoll]
//
// # Step Actions
//
//   - set_value: write a base field
//   - trigger: emit an application event with an optional payload
//   - roll: roll a formula in the entity's scope
//   - add_modifier / remove_modifier: change the modifier stack
//   - advance_round / set_round / rest: drive modifier expiry
//
// A step may name the error it expects with expect_error: a cascade guard
// code such as CYCLE_DETECTED, or "error" for any failure.
//
// # Assertion Types
//
//   - value, effective_value: compare a field's base or effective value
//   - event_emitted, event_count, event_order: inspect the trace
//   - message: an onMessage event carried the exact text
//   - modifier_count: the number of active modifiers on an entity
//
// # Deterministic Testing
//
// Every run uses a fresh engine with a deterministic clock, sequential
// modifier ids and either scripted dice faces or a seeded source, so the
// trace is identical across runs and can be compared to a golden file.
package harness
