// Package ir provides the type and signature model shared by every other
// package: type references, parameters, member descriptors and the build-time
// error taxonomy.
//
// This package imports nothing internal. The expression graph (expr), the
// lowering engine (lower), the emitters (emit) and the runtime (vm) all build
// on it, which keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Two types are equal iff they denote the same instantiation (Identical);
//     compatibility is the AssignableTo partial order, never equality.
//   - Parameter positions are 1-based and never reused once assigned.
//   - Finalized types are immutable and safe for concurrent readers.
//   - Member keys are NFC-normalized so registry lookups are stable.
package ir
