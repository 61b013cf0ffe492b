package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes build-time errors.
type ErrorCode string

const (
	// CodeSignatureNotFound indicates a constructor/method/field lookup failed.
	CodeSignatureNotFound ErrorCode = "SIGNATURE_NOT_FOUND"

	// CodeTypeMismatch indicates an argument is incompatible with its parameter.
	CodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// CodeInvalidCondition indicates a conditional test is not boolean.
	CodeInvalidCondition ErrorCode = "INVALID_CONDITION"

	// CodeBodySealed indicates a mutation of a sealed member body or type.
	CodeBodySealed ErrorCode = "BODY_SEALED"

	// CodeBaseCtorNotFound indicates no parameterless base constructor exists.
	CodeBaseCtorNotFound ErrorCode = "BASE_CTOR_NOT_FOUND"

	// CodeMemberCycle indicates sibling constructors invoke each other in a cycle.
	CodeMemberCycle ErrorCode = "MEMBER_CYCLE"

	// CodeNodeShared indicates an expression node was given a second parent.
	CodeNodeShared ErrorCode = "NODE_SHARED"

	// CodeInvalidTarget indicates an expression cannot be assigned or addressed.
	CodeInvalidTarget ErrorCode = "INVALID_TARGET"

	// CodeUnsupportedMember indicates a member cannot be proxied or emitted.
	CodeUnsupportedMember ErrorCode = "UNSUPPORTED_MEMBER"
)

// BuildError represents a deterministic failure of an IR construction,
// lowering or emission operation. It is returned synchronously to the caller
// of the offending builder operation and never retried.
type BuildError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Member names the member under construction, if known.
	Member string

	// Position is the 1-based offending argument position for type
	// mismatches; 0 means the argument count was wrong.
	Position int

	// Receiver marks a mismatch of the instance target rather than of an
	// argument; Position is 0 then.
	Receiver bool

	// Expected and Actual are the types involved in a mismatch.
	Expected *Type
	Actual   *Type

	// Path is the dependency path of a member cycle.
	Path []string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s: %s (member=%s)", e.Code, e.Message, e.Member)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any BuildError with the same code, so the sentinels below work
// with errors.Is.
func (e *BuildError) Is(target error) bool {
	var t *BuildError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// Sentinels for errors.Is matching.
var (
	ErrSignatureNotFound = &BuildError{Code: CodeSignatureNotFound}
	ErrTypeMismatch      = &BuildError{Code: CodeTypeMismatch}
	ErrInvalidCondition  = &BuildError{Code: CodeInvalidCondition}
	ErrBodySealed        = &BuildError{Code: CodeBodySealed}
	ErrBaseCtorNotFound  = &BuildError{Code: CodeBaseCtorNotFound}
	ErrMemberCycle       = &BuildError{Code: CodeMemberCycle}
	ErrNodeShared        = &BuildError{Code: CodeNodeShared}
	ErrInvalidTarget     = &BuildError{Code: CodeInvalidTarget}
	ErrUnsupportedMember = &BuildError{Code: CodeUnsupportedMember}
)

// NewSignatureNotFound creates a BuildError for a failed member lookup.
func NewSignatureNotFound(t *Type, name string, argTypes []*Type) *BuildError {
	args := make([]string, len(argTypes))
	for i, a := range argTypes {
		args[i] = a.Key()
	}
	return &BuildError{
		Code:    CodeSignatureNotFound,
		Message: fmt.Sprintf("no member %s.%s(%s)", t.Key(), name, strings.Join(args, ",")),
	}
}

// NewTypeMismatch creates a BuildError for an incompatible argument at
// position (1-based). Position 0 reports an argument count mismatch, in which
// case expected and actual may be nil.
func NewTypeMismatch(member string, position int, expected, actual *Type) *BuildError {
	msg := "argument count does not match parameter count"
	if position > 0 {
		msg = fmt.Sprintf("argument %d: %s is not assignable to %s", position, actual.Key(), expected.Key())
	}
	return &BuildError{
		Code:     CodeTypeMismatch,
		Message:  msg,
		Member:   member,
		Position: position,
		Expected: expected,
		Actual:   actual,
	}
}

// NewReceiverMismatch creates a TYPE_MISMATCH for an instance target that is
// not assignable to the member's declaring type.
func NewReceiverMismatch(member string, declaring, actual *Type) *BuildError {
	return &BuildError{
		Code:     CodeTypeMismatch,
		Message:  fmt.Sprintf("receiver: %s is not assignable to %s", actual.Key(), declaring.Key()),
		Member:   member,
		Receiver: true,
		Expected: declaring,
		Actual:   actual,
	}
}

// NewArityMismatch creates a TYPE_MISMATCH for a wrong argument count.
func NewArityMismatch(member string, want, got int) *BuildError {
	return &BuildError{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("expected %d argument(s), got %d", want, got),
		Member:  member,
	}
}

// NewInvalidCondition creates a BuildError for a non-boolean test.
func NewInvalidCondition(actual *Type) *BuildError {
	return &BuildError{
		Code:     CodeInvalidCondition,
		Message:  fmt.Sprintf("condition must be bool, got %s", actual.Key()),
		Expected: Bool,
		Actual:   actual,
	}
}

// NewBodySealed creates a BuildError for a mutation after sealing.
func NewBodySealed(member string) *BuildError {
	return &BuildError{
		Code:    CodeBodySealed,
		Message: "body is sealed and can no longer be modified",
		Member:  member,
	}
}

// NewBaseCtorNotFound creates a BuildError for a missing parameterless base constructor.
func NewBaseCtorNotFound(base *Type) *BuildError {
	return &BuildError{
		Code:    CodeBaseCtorNotFound,
		Message: fmt.Sprintf("no accessible parameterless constructor on %s", base.Key()),
	}
}

// NewMemberCycle creates a BuildError for a sibling constructor cycle.
func NewMemberCycle(path []string) *BuildError {
	return &BuildError{
		Code:    CodeMemberCycle,
		Message: "constructor cycle: " + strings.Join(path, " → "),
		Path:    path,
	}
}

// NewNodeShared creates a BuildError for a node attached to a second parent.
func NewNodeShared(node string) *BuildError {
	return &BuildError{
		Code:    CodeNodeShared,
		Message: fmt.Sprintf("%s already belongs to another expression", node),
	}
}

// NewInvalidTarget creates a BuildError for an expression that cannot be
// assigned to or addressed.
func NewInvalidTarget(msg string) *BuildError {
	return &BuildError{Code: CodeInvalidTarget, Message: msg}
}

// NewUnsupportedMember creates a BuildError for a member that cannot be emitted.
func NewUnsupportedMember(member, msg string) *BuildError {
	return &BuildError{Code: CodeUnsupportedMember, Message: msg, Member: member}
}

// IsTypeMismatch returns true if the error is a TYPE_MISMATCH build error.
// Uses errors.As to handle wrapped errors.
func IsTypeMismatch(err error) bool { return hasCode(err, CodeTypeMismatch) }

// IsReceiverMismatch returns true if the error is a TYPE_MISMATCH raised for
// the instance target of a member access.
func IsReceiverMismatch(err error) bool {
	var be *BuildError
	return errors.As(err, &be) && be.Code == CodeTypeMismatch && be.Receiver
}

// IsSignatureNotFound returns true if the error is a SIGNATURE_NOT_FOUND build error.
func IsSignatureNotFound(err error) bool { return hasCode(err, CodeSignatureNotFound) }

// IsBodySealed returns true if the error is a BODY_SEALED build error.
func IsBodySealed(err error) bool { return hasCode(err, CodeBodySealed) }

// IsMemberCycle returns true if the error is a MEMBER_CYCLE build error.
func IsMemberCycle(err error) bool { return hasCode(err, CodeMemberCycle) }

func hasCode(err error, code ErrorCode) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}
