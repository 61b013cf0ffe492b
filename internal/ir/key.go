package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainMember = "deltaexpr/member/v1"
	DomainType   = "deltaexpr/type/v1"
)

// normalizeName NFC-normalizes identifiers so that visually identical member
// names produce identical keys regardless of how they were composed.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

// Key returns the canonical member key, e.g. "Calculator.Add(int,&int)".
// Generic method definitions carry their arity: "Repo.Get`1()".
func (m *Method) Key() string {
	name := normalizeName(m.Name)
	if n := len(m.GenericParams); n > 0 {
		name = fmt.Sprintf("%s`%d", name, n)
	}
	if m.Declaring != nil {
		name = m.Declaring.Key() + "." + name
	}
	return name + "(" + paramKeys(m.Params) + ")"
}

func (m *Method) String() string { return m.Key() }

// HashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
