// Package rules matches events to declared automations and runs them.
//
// A rule reacts to one event name, optionally filtered to one field. Its
// conditions are AND-only. Once they pass, its effects run in declaration
// order. Effects reach back into the engine through Host, so set_value and
// trigger_event re-enter ExecuteForEvent synchronously.
//
// CASCADE GUARD:
//
// Every top-level ExecuteForEvent opens a cascade carried in the context.
// The cascade bounds re-entry depth (WithMaxDepth), bounds the total number
// of rule firings (WithMaxSteps), and skips a firing identical to one
// already made in the cascade (same rule, entity and event content). The
// first guard trip is returned to the top-level caller as a *RuntimeError.
// Mutations already made stay applied.
//
// ERROR TIERS:
//
// A failing condition or effect is logged and the rule engine moves on.
// It never aborts the remaining effects or rules.
package rules
