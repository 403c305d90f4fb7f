// Package ir provides the plain-data types shared by every Forge package.
//
// This package contains type definitions and their serialisation only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface (Null, Number, Text, Bool, Object)
//   - Schema types are read-only once compiled
//   - JSON tags use camelCase, matching the plain-data boundary that schema
//     and persistence collaborators exchange with the engine
//   - Logical timestamps (seq) only, never wall-clock time
package ir
