// Package emit builds callable members and assembles them into types.
//
// A MethodEmitter or ConstructorEmitter owns a signature and a body. Emit
// lowers the body and installs the result as the member's implementation.
// A TypeEmitter collects members, emits them in dependency order and
// finalizes the type, which from then on is immutable and executable by
// package vm.
//
// INVARIANTS:
//   - Parameter positions follow declaration order and never change.
//   - An empty constructor body first calls the parameterless base
//     constructor (BASE_CTOR_NOT_FOUND when there is none).
//   - Runtime-provided members are never given a body.
//   - Constructors invoking siblings are emitted after those siblings; a
//     cycle fails with MEMBER_CYCLE naming the path.
//   - The type is finalized only after every body is sealed; afterwards the
//     emitter rejects definitions with BODY_SEALED.
package emit
