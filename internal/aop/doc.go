// Package aop generates interception proxies.
//
// A Registry maps virtual members to ordered chains of Interceptors. A
// ProxyBuilder derives a proxy type from a base class: every accessible base
// constructor is forwarded and every virtual member with a chain is
// overridden. The override packages its arguments into an object array,
// hands them to the member's ProxyDescriptor and converts the outcome back
// to the declared return type.
//
// The descriptor picks one of four invocation shapes from the member's
// return type (sync-void, sync-value, async-void, async-value) and runs the
// chain with the matching continuation, ending in a non-virtual call to the
// base implementation.
//
// INVARIANTS:
//   - Interceptors run in registration order; chain[0] is outermost.
//   - By-ref arguments are written back from the packaged inputs even when
//     the chain or the member fails.
//   - A generic member is closed over the call-site type arguments before
//     the chain sees it.
//   - Asynchronous members complete on the builder's loop; by-ref
//     parameters are rejected for them with UNSUPPORTED_MEMBER.
package aop
