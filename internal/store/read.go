package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Builds returns every build ordered by seq.
//
// Returns an empty slice (not nil) if no builds exist.
func (s *Store) Builds(ctx context.Context) ([]Build, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, seq FROM builds ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	builds := []Build{}
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.Label, &b.Seq); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate builds: %w", err)
	}
	return builds, nil
}

// LatestBuild returns the build with the highest seq, or ErrNotFound.
func (s *Store) LatestBuild(ctx context.Context) (Build, error) {
	var b Build
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, seq FROM builds ORDER BY seq DESC LIMIT 1
	`).Scan(&b.ID, &b.Label, &b.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Build{}, ErrNotFound
	}
	if err != nil {
		return Build{}, fmt.Errorf("query latest build: %w", err)
	}
	return b, nil
}

// Types returns the types of a build with their members, ordered by name.
func (s *Store) Types(ctx context.Context, buildID string) ([]TypeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT build_id, name, base, fingerprint
		FROM types
		WHERE build_id = ?
		ORDER BY name COLLATE BINARY ASC
	`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query types: %w", err)
	}
	types := []TypeRecord{}
	for rows.Next() {
		var t TypeRecord
		if err := rows.Scan(&t.BuildID, &t.Name, &t.Base, &t.Fingerprint); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan type: %w", err)
		}
		types = append(types, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate types: %w", err)
	}

	for i := range types {
		if types[i].Members, err = s.members(ctx, buildID, types[i].Name); err != nil {
			return nil, err
		}
	}
	return types, nil
}

// Type returns one type of a build, or ErrNotFound.
func (s *Store) Type(ctx context.Context, buildID, name string) (TypeRecord, error) {
	var t TypeRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT build_id, name, base, fingerprint
		FROM types
		WHERE build_id = ? AND name = ?
	`, buildID, name).Scan(&t.BuildID, &t.Name, &t.Base, &t.Fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return TypeRecord{}, fmt.Errorf("type %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return TypeRecord{}, fmt.Errorf("query type %s: %w", name, err)
	}
	if t.Members, err = s.members(ctx, buildID, name); err != nil {
		return TypeRecord{}, err
	}
	return t, nil
}

// members reads the members of one type, ordered by key.
func (s *Store) members(ctx context.Context, buildID, typeName string) ([]MemberRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type_name, member_key, kind, listing, canonical, fingerprint
		FROM members
		WHERE build_id = ? AND type_name = ?
		ORDER BY member_key COLLATE BINARY ASC
	`, buildID, typeName)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []MemberRecord{}
	for rows.Next() {
		var m MemberRecord
		if err := rows.Scan(&m.TypeName, &m.Key, &m.Kind, &m.Listing, &m.Canonical, &m.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// Mismatch reports a stored fingerprint that does not match its content.
type Mismatch struct {
	Type   string
	Member string // empty for the type fingerprint
	Stored string
	Actual string
}

// Verify recomputes every fingerprint of a build from the stored content
// and returns the mismatches. An empty result means the build is intact.
func (s *Store) Verify(ctx context.Context, buildID string) ([]Mismatch, error) {
	types, err := s.Types(ctx, buildID)
	if err != nil {
		return nil, err
	}
	mismatches := []Mismatch{}
	for _, t := range types {
		for _, m := range t.Members {
			if actual := ir.HashWithDomain(ir.DomainMember, []byte(m.Canonical)); actual != m.Fingerprint {
				mismatches = append(mismatches, Mismatch{Type: t.Name, Member: m.Key, Stored: m.Fingerprint, Actual: actual})
			}
		}
		if actual := typeFingerprint(t); actual != t.Fingerprint {
			mismatches = append(mismatches, Mismatch{Type: t.Name, Stored: t.Fingerprint, Actual: actual})
		}
	}
	return mismatches, nil
}
