// Package vm executes lowered members.
//
// The machine interprets the instruction streams produced by package lower
// and calls native Go implementations through ir.NativeFunc. It is the
// runtime the type emitter finalizes members against, and the one the
// interception dispatcher calls back into.
//
// INVARIANTS:
//   - A finally handler runs exactly once whenever control leaves its
//     protected region, whether by leave, by an exception or by a return
//     lowered into a leave.
//   - Catch handlers are selected innermost first by the runtime type of
//     the thrown object.
//   - An exception raised from a Go error escapes as that error, unchanged.
//   - Nested invocations are bounded by the configured maximum depth.
package vm
