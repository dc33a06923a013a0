// Package ir provides the shared data model of the automation engine.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// value model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Script numbers are never stored as float64: integral values become
//     IRInt, everything else becomes an arbitrary-precision IRDecimal
//   - Entities created inside one invocation are referenced through
//     EntityRef (Persisted | Pending) until the commit resolves them
//   - All JSON tags use snake_case
package ir
