// Package sqlitestore persists the object graph in SQLite. Objects,
// origins and scan profiles are stored bitemporally: every write closes
// the current valid window of its key and opens a new one, so the graph
// can be read as of any past valid time.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openkat/octopoes/model"
	"github.com/openkat/octopoes/path"
	"github.com/openkat/octopoes/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS objects (
	primary_key TEXT NOT NULL,
	object_type TEXT NOT NULL,
	document    TEXT NOT NULL,
	valid_from  INTEGER NOT NULL,
	valid_to    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_objects_pk ON objects (primary_key, valid_from);
CREATE INDEX IF NOT EXISTS idx_objects_type ON objects (object_type, valid_from);

CREATE TABLE IF NOT EXISTS relations (
	source_pk   TEXT NOT NULL,
	source_type TEXT NOT NULL,
	property    TEXT NOT NULL,
	target_pk   TEXT NOT NULL,
	target_type TEXT NOT NULL,
	valid_from  INTEGER NOT NULL,
	valid_to    INTEGER
);
CREATE INDEX IF NOT EXISTS idx_relations_source ON relations (source_pk, property);
CREATE INDEX IF NOT EXISTS idx_relations_target ON relations (target_pk, property);

CREATE TABLE IF NOT EXISTS origins (
	id         TEXT NOT NULL,
	document   TEXT NOT NULL,
	valid_from INTEGER NOT NULL,
	valid_to   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_origins_id ON origins (id, valid_from);

CREATE TABLE IF NOT EXISTS scan_profiles (
	reference  TEXT NOT NULL,
	document   TEXT NOT NULL,
	valid_from INTEGER NOT NULL,
	valid_to   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_profiles_ref ON scan_profiles (reference, valid_from);
`

// Store is the SQLite-backed Repository.
type Store struct {
	db  *sql.DB
	reg *model.Registry
}

var _ storage.Repository = (*Store)(nil)

// Open opens (and creates if needed) a store at the given database path.
// Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, reg *model.Registry, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// The sqlite driver serializes writes; a single connection avoids
	// table-lock errors under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, reg: reg}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, valid time.Time, ref model.Reference) (model.Object, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT object_type, document FROM objects
		WHERE primary_key = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from DESC LIMIT 1`,
		string(ref), valid.UnixNano(), valid.UnixNano())

	var objectType, document string
	if err := row.Scan(&objectType, &document); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
		}
		return nil, fmt.Errorf("get %s: %w", ref, err)
	}

	obj, err := s.decode(objectType, document)
	if err != nil {
		return nil, err
	}
	if profile, err := s.GetScanProfile(ctx, valid, ref); err == nil {
		obj.SetScanProfile(profile)
	}
	return obj, nil
}

func (s *Store) List(ctx context.Context, valid time.Time, types []string) ([]model.Object, error) {
	if len(types) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		SELECT object_type, document FROM objects
		WHERE object_type IN (%s) AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY primary_key`, placeholders(len(types)))

	args := make([]any, 0, len(types)+2)
	for _, t := range types {
		args = append(args, t)
	}
	args = append(args, valid.UnixNano(), valid.UnixNano())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []model.Object
	for rows.Next() {
		var objectType, document string
		if err := rows.Scan(&objectType, &document); err != nil {
			return nil, err
		}
		obj, err := s.decode(objectType, document)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

func (s *Store) Walk(ctx context.Context, valid time.Time, p path.Path, anchors []model.Reference) ([]model.Object, error) {
	clauses, err := p.Compile(s.reg)
	if err != nil {
		return nil, err
	}

	frontier := make([]string, 0, len(anchors))
	for _, ref := range anchors {
		frontier = append(frontier, string(ref))
	}

	for _, clause := range clauses {
		if len(frontier) == 0 {
			break
		}
		frontier, err = s.walkHop(ctx, valid, clause, frontier)
		if err != nil {
			return nil, err
		}
	}
	if len(frontier) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT object_type, document FROM objects
		WHERE primary_key IN (%s) AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY primary_key`, placeholders(len(frontier)))
	args := make([]any, 0, len(frontier)+2)
	for _, pk := range frontier {
		args = append(args, pk)
	}
	args = append(args, valid.UnixNano(), valid.UnixNano())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load walk results: %w", err)
	}
	defer rows.Close()

	var out []model.Object
	for rows.Next() {
		var objectType, document string
		if err := rows.Scan(&objectType, &document); err != nil {
			return nil, err
		}
		obj, err := s.decode(objectType, document)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

// walkHop resolves one clause of a compiled path against the relations
// table. For incoming clauses the declaring types sit on the source side
// of the relation rows and the frontier on the target side.
func (s *Store) walkHop(ctx context.Context, valid time.Time, clause path.Clause, frontier []string) ([]string, error) {
	var query string
	var typeFilter []string
	if clause.Direction == path.Outgoing {
		typeFilter = clause.TargetTypes
		query = fmt.Sprintf(`
			SELECT DISTINCT target_pk FROM relations
			WHERE property = ? AND source_pk IN (%s) AND target_type IN (%s)
			AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
			placeholders(len(frontier)), placeholders(len(typeFilter)))
	} else {
		typeFilter = clause.TargetTypes
		query = fmt.Sprintf(`
			SELECT DISTINCT source_pk FROM relations
			WHERE property = ? AND target_pk IN (%s) AND source_type IN (%s)
			AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
			placeholders(len(frontier)), placeholders(len(typeFilter)))
	}

	args := make([]any, 0, len(frontier)+len(typeFilter)+3)
	args = append(args, clause.Property)
	for _, pk := range frontier {
		args = append(args, pk)
	}
	for _, t := range typeFilter {
		args = append(args, t)
	}
	args = append(args, valid.UnixNano(), valid.UnixNano())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("walk hop %s: %w", clause.Property, err)
	}
	defer rows.Close()

	var next []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, err
		}
		next = append(next, pk)
	}
	return next, rows.Err()
}

func (s *Store) SaveDeclaration(ctx context.Context, valid time.Time, obj model.Object) error {
	origin := storage.Origin{
		Type:    storage.OriginDeclaration,
		Method:  "manual",
		Source:  model.PrimaryKey(obj),
		Results: []model.Reference{model.PrimaryKey(obj)},
	}
	return s.SaveObservation(ctx, valid, origin, []model.Object{obj})
}

func (s *Store) SaveObservation(ctx context.Context, valid time.Time, origin storage.Origin, objs []model.Object) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	previous, err := loadOrigin(ctx, tx, valid, origin.ID())
	if err != nil {
		return err
	}

	origin.Results = origin.Results[:0:0]
	kept := make(map[model.Reference]struct{}, len(objs))
	for _, obj := range objs {
		if err := saveObject(ctx, tx, valid, obj); err != nil {
			return err
		}
		ref := model.PrimaryKey(obj)
		origin.Results = append(origin.Results, ref)
		kept[ref] = struct{}{}
	}
	if err := saveOrigin(ctx, tx, valid, origin); err != nil {
		return err
	}

	// An observation replaces the origin's whole result set: whatever
	// dropped out is retracted, unless some other origin still yields it.
	if previous != nil {
		for _, ref := range previous.Results {
			if _, ok := kept[ref]; ok {
				continue
			}
			referenced, err := resultReferenced(ctx, tx, valid, ref)
			if err != nil {
				return err
			}
			if referenced {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE objects SET valid_to = ? WHERE primary_key = ? AND valid_to IS NULL`,
				valid.UnixNano(), string(ref)); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE relations SET valid_to = ? WHERE source_pk = ? AND valid_to IS NULL`,
				valid.UnixNano(), string(ref)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func loadOrigin(ctx context.Context, tx *sql.Tx, valid time.Time, id string) (*storage.Origin, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT document FROM origins
		WHERE id = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from DESC LIMIT 1`,
		id, valid.UnixNano(), valid.UnixNano())

	var document string
	if err := row.Scan(&document); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load origin %s: %w", id, err)
	}
	var origin storage.Origin
	if err := json.Unmarshal([]byte(document), &origin); err != nil {
		return nil, fmt.Errorf("decode origin %s: %w", id, err)
	}
	return &origin, nil
}

// resultReferenced reports whether any origin live at valid still lists
// the reference in its results.
func resultReferenced(ctx context.Context, tx *sql.Tx, valid time.Time, ref model.Reference) (bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT document FROM origins
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)`,
		valid.UnixNano(), valid.UnixNano())
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return false, err
		}
		var origin storage.Origin
		if err := json.Unmarshal([]byte(document), &origin); err != nil {
			return false, fmt.Errorf("decode origin: %w", err)
		}
		for _, result := range origin.Results {
			if result == ref {
				return true, nil
			}
		}
	}
	return false, rows.Err()
}

func (s *Store) SaveAffirmation(ctx context.Context, valid time.Time, obj model.Object) error {
	ref := model.PrimaryKey(obj)
	if _, err := s.Get(ctx, valid, ref); err != nil {
		return fmt.Errorf("affirm %s: %w", ref, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := saveObject(ctx, tx, valid, obj); err != nil {
		return err
	}
	origin := storage.Origin{
		Type:    storage.OriginAffirmation,
		Method:  "affirmation",
		Source:  ref,
		Results: []model.Reference{ref},
	}
	if err := saveOrigin(ctx, tx, valid, origin); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, valid time.Time, ref model.Reference) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE objects SET valid_to = ? WHERE primary_key = ? AND valid_to IS NULL`,
		valid.UnixNano(), string(ref))
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, ref)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE relations SET valid_to = ? WHERE source_pk = ? AND valid_to IS NULL`,
		valid.UnixNano(), string(ref)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Origins(ctx context.Context, valid time.Time, result model.Reference) ([]storage.Origin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM origins
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY id`,
		valid.UnixNano(), valid.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list origins: %w", err)
	}
	defer rows.Close()

	var out []storage.Origin
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		var origin storage.Origin
		if err := json.Unmarshal([]byte(document), &origin); err != nil {
			return nil, fmt.Errorf("decode origin: %w", err)
		}
		for _, ref := range origin.Results {
			if ref == result {
				out = append(out, origin)
				break
			}
		}
	}
	return out, rows.Err()
}

func (s *Store) GetScanProfile(ctx context.Context, valid time.Time, ref model.Reference) (*model.ScanProfile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document FROM scan_profiles
		WHERE reference = ? AND valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY valid_from DESC LIMIT 1`,
		string(ref), valid.UnixNano(), valid.UnixNano())

	var document string
	if err := row.Scan(&document); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: no scan profile for %s", storage.ErrObjectNotFound, ref)
		}
		return nil, fmt.Errorf("get scan profile %s: %w", ref, err)
	}
	var profile model.ScanProfile
	if err := json.Unmarshal([]byte(document), &profile); err != nil {
		return nil, fmt.Errorf("decode scan profile: %w", err)
	}
	return &profile, nil
}

func (s *Store) SaveScanProfile(ctx context.Context, valid time.Time, profile *model.ScanProfile) error {
	document, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode scan profile: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE scan_profiles SET valid_to = ? WHERE reference = ? AND valid_to IS NULL`,
		valid.UnixNano(), string(profile.Reference)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scan_profiles (reference, document, valid_from) VALUES (?, ?, ?)`,
		string(profile.Reference), string(document), valid.UnixNano()); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) ListScanProfiles(ctx context.Context, valid time.Time, profileType model.ScanProfileType) ([]*model.ScanProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM scan_profiles
		WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to > ?)
		ORDER BY reference`,
		valid.UnixNano(), valid.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("list scan profiles: %w", err)
	}
	defer rows.Close()

	var out []*model.ScanProfile
	for rows.Next() {
		var document string
		if err := rows.Scan(&document); err != nil {
			return nil, err
		}
		var profile model.ScanProfile
		if err := json.Unmarshal([]byte(document), &profile); err != nil {
			return nil, fmt.Errorf("decode scan profile: %w", err)
		}
		if profileType == "" || profile.Type == profileType {
			out = append(out, &profile)
		}
	}
	return out, rows.Err()
}

func (s *Store) decode(objectType, document string) (model.Object, error) {
	obj, err := s.reg.New(objectType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(document), obj); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", objectType, err)
	}
	return obj, nil
}

func saveObject(ctx context.Context, tx *sql.Tx, valid time.Time, obj model.Object) error {
	ref := model.PrimaryKey(obj)
	document, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE objects SET valid_to = ? WHERE primary_key = ? AND valid_to IS NULL`,
		valid.UnixNano(), string(ref)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO objects (primary_key, object_type, document, valid_from) VALUES (?, ?, ?, ?)`,
		string(ref), obj.ObjectType(), string(document), valid.UnixNano()); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE relations SET valid_to = ? WHERE source_pk = ? AND valid_to IS NULL`,
		valid.UnixNano(), string(ref)); err != nil {
		return err
	}
	for property, target := range obj.Relations() {
		if target.IsZero() {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO relations (source_pk, source_type, property, target_pk, target_type, valid_from)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(ref), obj.ObjectType(), property, string(target), target.ObjectType(), valid.UnixNano(),
		); err != nil {
			return err
		}
	}
	return nil
}

func saveOrigin(ctx context.Context, tx *sql.Tx, valid time.Time, origin storage.Origin) error {
	document, err := json.Marshal(origin)
	if err != nil {
		return fmt.Errorf("encode origin: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE origins SET valid_to = ? WHERE id = ? AND valid_to IS NULL`,
		valid.UnixNano(), origin.ID()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO origins (id, document, valid_from) VALUES (?, ?, ?)`,
		origin.ID(), string(document), valid.UnixNano()); err != nil {
		return err
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
