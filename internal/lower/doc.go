// Package lower translates expression graphs into linear stack-machine
// instruction streams.
//
// A Body moves through Empty -> Building -> Sealed. Sealing lowers the body
// once and freezes it; the resulting EmittedMember never changes afterwards.
//
// INVARIANTS:
//   - Every member has exactly one Ret instruction, at the exit label. Return
//     nodes store into the $ret slot and branch to the exit, using Leave when
//     inside a protected region so that finally handlers run.
//   - Local slots are 0-based, assigned on first use and never reused.
//   - Exception regions are listed innermost first.
package lower
