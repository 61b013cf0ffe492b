// Package plan loads declarative interception plans written in CUE.
//
// A plan maps member keys to ordered interceptor names:
//
//	intercept: {
//		"Calculator.Add(int,&int)": ["logging", "timing"]
//	}
//
// Names are resolved against a Catalog of interceptor factories and the
// resulting chains are registered with an aop.Registry. Member keys are
// NFC-normalized the way ir member keys are, so a plan written with
// decomposed characters still binds.
//
// INVARIANTS:
//   - Only the intercept table is accepted at the top level.
//   - Every chain names at least one interceptor and no name twice.
//   - Apply registers nothing when any name is unknown.
package plan
