package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

// Member kinds as stored in members.kind.
const (
	KindConstructor = "constructor"
	KindMethod      = "method"
	KindNative      = "native"
)

// Build groups the types produced by one build step.
type Build struct {
	ID    string
	Label string
	Seq   int64
}

// TypeRecord is the stored form of a finalized type.
type TypeRecord struct {
	BuildID     string
	Name        string
	Base        string
	Fingerprint string
	Members     []MemberRecord
}

// MemberRecord is the stored form of one implemented member.
type MemberRecord struct {
	TypeName    string
	Key         string
	Kind        string
	Listing     string
	Canonical   string
	Fingerprint string
}

// BeginBuild records a new build. Its seq is one past the latest build's.
func (s *Store) BeginBuild(ctx context.Context, label string) (Build, error) {
	b := Build{ID: s.ids(), Label: label}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO builds (id, label, seq)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1 FROM builds
		RETURNING seq
	`, b.ID, b.Label).Scan(&b.Seq)
	if err != nil {
		return Build{}, fmt.Errorf("begin build: %w", err)
	}
	s.logger.Info("build started", "build", b.ID, "label", label, "seq", b.Seq)
	return b, nil
}

// Record converts a finalized type to its stored form. Members without an
// implementation (abstract and runtime-provided ones) are not recorded.
// Members are ordered by key.
func Record(t *ir.Type) (TypeRecord, error) {
	rec := TypeRecord{Name: t.Key(), Base: "object"}
	if t.Base != nil {
		rec.Base = t.Base.Key()
	}
	for _, c := range t.Constructors {
		m, ok, err := memberRecord(rec.Name, c.Key(), KindConstructor, c.Impl)
		if err != nil {
			return TypeRecord{}, err
		}
		if ok {
			rec.Members = append(rec.Members, m)
		}
	}
	for _, method := range t.Methods {
		m, ok, err := memberRecord(rec.Name, method.Key(), KindMethod, method.Impl)
		if err != nil {
			return TypeRecord{}, err
		}
		if ok {
			rec.Members = append(rec.Members, m)
		}
	}
	sort.Slice(rec.Members, func(i, j int) bool { return rec.Members[i].Key < rec.Members[j].Key })
	rec.Fingerprint = typeFingerprint(rec)
	return rec, nil
}

func memberRecord(typeName, key, kind string, impl any) (MemberRecord, bool, error) {
	m := MemberRecord{TypeName: typeName, Key: key, Kind: kind}
	switch impl := impl.(type) {
	case *lower.EmittedMember:
		canonical, err := lower.CanonicalJSON(impl)
		if err != nil {
			return m, false, fmt.Errorf("record %s: %w", key, err)
		}
		m.Listing = lower.Disassemble(impl)
		m.Canonical = string(canonical)
	case ir.NativeFunc:
		m.Kind = KindNative
		m.Canonical = "native " + key
	default:
		return m, false, nil
	}
	m.Fingerprint = ir.HashWithDomain(ir.DomainMember, []byte(m.Canonical))
	return m, true, nil
}

// typeFingerprint hashes the type name, its base and the sorted member
// fingerprints.
func typeFingerprint(rec TypeRecord) string {
	var b strings.Builder
	b.WriteString(rec.Name)
	b.WriteByte(0)
	b.WriteString(rec.Base)
	for _, m := range rec.Members {
		b.WriteByte(0)
		b.WriteString(m.Key)
		b.WriteByte('=')
		b.WriteString(m.Fingerprint)
	}
	return ir.HashWithDomain(ir.DomainType, []byte(b.String()))
}

// SaveType records t under build. Saving the same type twice in one build
// is a no-op.
func (s *Store) SaveType(ctx context.Context, buildID string, t *ir.Type) (TypeRecord, error) {
	rec, err := Record(t)
	if err != nil {
		return TypeRecord{}, err
	}
	rec.BuildID = buildID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TypeRecord{}, fmt.Errorf("save type %s: %w", rec.Name, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO types (build_id, name, base, fingerprint)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, buildID, rec.Name, rec.Base, rec.Fingerprint)
	if err != nil {
		return TypeRecord{}, fmt.Errorf("save type %s: %w", rec.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return rec, nil
	}
	for _, m := range rec.Members {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (build_id, type_name, member_key, kind, listing, canonical, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, buildID, m.TypeName, m.Key, m.Kind, m.Listing, m.Canonical, m.Fingerprint)
		if err != nil {
			return TypeRecord{}, fmt.Errorf("save member %s: %w", m.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return TypeRecord{}, fmt.Errorf("save type %s: %w", rec.Name, err)
	}
	s.logger.Info("type saved", "build", buildID, "type", rec.Name, "members", len(rec.Members), "fingerprint", rec.Fingerprint)
	return rec, nil
}
