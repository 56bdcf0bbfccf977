// Package relational maps the memory store's entities onto the normalized SQL
// schema shared by the sqlite and postgres backends. Writes are incremental:
// only the rows created by a committed transaction are inserted.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mitostat/internal/infra/persistence/memory"
	"mitostat/internal/infra/persistence/sqlbundle"
	"mitostat/pkg/domain"
)

// ErrConflict marks an insert rejected by a unique or primary key constraint,
// which happens when another writer committed rows this process has not loaded.
var ErrConflict = errors.New("relational: unique constraint conflict")

// positionBatch bounds rows per fasta_position insert so the statement stays
// under SQLite's default host parameter limit.
const positionBatch = 300

// Dialect captures the per-backend SQL differences.
type Dialect struct {
	Name string
	DDL  func() string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
}

// SQLite uses positional "?" parameters.
var SQLite = Dialect{
	Name:        "sqlite",
	DDL:         sqlbundle.SQLite,
	Placeholder: func(int) string { return "?" },
}

// Postgres uses numbered "$n" parameters.
var Postgres = Dialect{
	Name:        "postgres",
	DDL:         sqlbundle.Postgres,
	Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ApplyDDL executes every statement of ddl in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// insertSQL renders an insert of rows tuples over cols.
func (d Dialect) insertSQL(table string, cols []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range cols {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// WriteChanges inserts the rows for every created entity in changes.
// Sequences also get their fasta_position rows.
func WriteChanges(ctx context.Context, tx Execer, d Dialect, changes []domain.Change) error {
	for _, change := range changes {
		if change.Action != domain.ActionCreate {
			return fmt.Errorf("unsupported action %q for %s", change.Action, change.Entity)
		}
		var err error
		switch v := change.After.(type) {
		case domain.Region:
			err = insertRegion(ctx, tx, d, v)
		case domain.Sequence:
			err = insertSequence(ctx, tx, d, v)
		case domain.Person:
			err = insertPerson(ctx, tx, d, v)
		default:
			err = fmt.Errorf("unsupported change payload %T for %s", change.After, change.Entity)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func insertRegion(ctx context.Context, tx Execer, d Dialect, r domain.Region) error {
	if _, err := tx.ExecContext(ctx, d.insertSQL("region", []string{"id", "name"}, 1), r.ID, r.Name); err != nil {
		return fmt.Errorf("insert region %q: %w", r.Name, conflict(err))
	}
	return nil
}

func insertSequence(ctx context.Context, tx Execer, d Dialect, s domain.Sequence) error {
	cols := []string{"id", "url", "fasta", "sequence_type", "name"}
	if _, err := tx.ExecContext(ctx, d.insertSQL("sequence", cols, 1),
		s.ID, nullString(s.URL), s.Fasta, int64(s.Type), nullString(s.Name)); err != nil {
		if s.Name != "" && IsUniqueViolation(err) {
			return fmt.Errorf("insert sequence %q: %w: %w", s.Name, domain.ErrDuplicateSequence, conflict(err))
		}
		return fmt.Errorf("insert sequence %d: %w", s.ID, conflict(err))
	}
	return insertPositions(ctx, tx, d, s)
}

func insertPositions(ctx context.Context, tx Execer, d Dialect, s domain.Sequence) error {
	cols := []string{"sequence_id", "position", "value"}
	positions := s.Positions()
	for start := 0; start < len(positions); start += positionBatch {
		end := start + positionBatch
		if end > len(positions) {
			end = len(positions)
		}
		args := make([]any, 0, (end-start)*len(cols))
		for _, p := range positions[start:end] {
			args = append(args, p.SequenceID, int64(p.Position), string([]byte{p.Value}))
		}
		if _, err := tx.ExecContext(ctx, d.insertSQL("fasta_position", cols, end-start), args...); err != nil {
			return fmt.Errorf("insert positions for sequence %d: %w", s.ID, conflict(err))
		}
	}
	return nil
}

func insertPerson(ctx context.Context, tx Execer, d Dialect, p domain.Person) error {
	cols := []string{"id", "region_id", "sequence_id", "source_url"}
	if _, err := tx.ExecContext(ctx, d.insertSQL("person", cols, 1),
		p.ID, p.RegionID, p.SequenceID, nullString(p.SourceURL)); err != nil {
		return fmt.Errorf("insert person %d: %w", p.ID, conflict(err))
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// IsUniqueViolation reports whether err is a unique or primary key violation
// from the postgres (SQLSTATE 23505) or sqlite (extended codes 2067 and 1555)
// driver.
func IsUniqueViolation(err error) bool {
	var pg interface{ SQLState() string }
	if errors.As(err, &pg) {
		return pg.SQLState() == "23505"
	}
	var lite interface{ Code() int }
	if errors.As(err, &lite) {
		code := lite.Code()
		return code == 2067 || code == 1555
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func conflict(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// RetryOnConflict runs run once more after reloading mem from db when the
// first attempt lost a race with another writer.
func RetryOnConflict(ctx context.Context, db Queryer, mem *memory.Store, run func() (domain.Result, error)) (domain.Result, error) {
	res, err := run()
	if !errors.Is(err, ErrConflict) {
		return res, err
	}
	snapshot, lerr := Load(ctx, db)
	if lerr != nil {
		return res, errors.Join(err, fmt.Errorf("reload after conflict: %w", lerr))
	}
	mem.ImportState(snapshot)
	return run()
}

// Load reads every table into a memory snapshot and verifies that the
// fasta_position rows cover each sequence exactly.
func Load(ctx context.Context, db Queryer) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Regions:   make(map[int64]domain.Region),
		Sequences: make(map[int64]domain.Sequence),
		Persons:   make(map[int64]domain.Person),
	}
	if err := loadRegions(ctx, db, snapshot.Regions); err != nil {
		return memory.Snapshot{}, err
	}
	if err := loadSequences(ctx, db, snapshot.Sequences); err != nil {
		return memory.Snapshot{}, err
	}
	if err := loadPersons(ctx, db, snapshot); err != nil {
		return memory.Snapshot{}, err
	}
	if err := verifyPositions(ctx, db, snapshot.Sequences); err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func loadRegions(ctx context.Context, db Queryer, out map[int64]domain.Region) error {
	rows, err := db.QueryContext(ctx, `SELECT id, name FROM region`)
	if err != nil {
		return fmt.Errorf("select region: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var r domain.Region
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return fmt.Errorf("scan region: %w", err)
		}
		out[r.ID] = r
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate region: %w", err)
	}
	return nil
}

func loadSequences(ctx context.Context, db Queryer, out map[int64]domain.Sequence) error {
	rows, err := db.QueryContext(ctx, `SELECT id, url, fasta, sequence_type, name FROM sequence`)
	if err != nil {
		return fmt.Errorf("select sequence: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			s         domain.Sequence
			url, name sql.NullString
			kind      int64
		)
		if err := rows.Scan(&s.ID, &url, &s.Fasta, &kind, &name); err != nil {
			return fmt.Errorf("scan sequence: %w", err)
		}
		s.Type = domain.SequenceType(kind)
		if !s.Type.Valid() {
			return fmt.Errorf("sequence %d has invalid type %d", s.ID, kind)
		}
		s.URL = url.String
		s.Name = name.String
		out[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate sequence: %w", err)
	}
	return nil
}

func loadPersons(ctx context.Context, db Queryer, snapshot memory.Snapshot) error {
	rows, err := db.QueryContext(ctx, `SELECT id, region_id, sequence_id, source_url FROM person`)
	if err != nil {
		return fmt.Errorf("select person: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			p      domain.Person
			source sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.RegionID, &p.SequenceID, &source); err != nil {
			return fmt.Errorf("scan person: %w", err)
		}
		if _, ok := snapshot.Regions[p.RegionID]; !ok {
			return fmt.Errorf("person %d references missing region %d", p.ID, p.RegionID)
		}
		if _, ok := snapshot.Sequences[p.SequenceID]; !ok {
			return fmt.Errorf("person %d references missing sequence %d", p.ID, p.SequenceID)
		}
		p.SourceURL = source.String
		snapshot.Persons[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate person: %w", err)
	}
	return nil
}

func verifyPositions(ctx context.Context, db Queryer, sequences map[int64]domain.Sequence) error {
	rows, err := db.QueryContext(ctx, `SELECT sequence_id, position, value FROM fasta_position`)
	if err != nil {
		return fmt.Errorf("select fasta_position: %w", err)
	}
	defer func() { _ = rows.Close() }()
	seen := make(map[int64][]bool, len(sequences))
	for rows.Next() {
		var (
			id       int64
			position int64
			value    string
		)
		if err := rows.Scan(&id, &position, &value); err != nil {
			return fmt.Errorf("scan fasta_position: %w", err)
		}
		seq, ok := sequences[id]
		if !ok {
			return fmt.Errorf("fasta_position references missing sequence %d", id)
		}
		marks := seen[id]
		if marks == nil {
			marks = make([]bool, len(seq.Fasta))
			seen[id] = marks
		}
		if position < 0 || position >= int64(len(marks)) {
			return fmt.Errorf("sequence %d: position %d out of range", id, position)
		}
		if marks[position] {
			return fmt.Errorf("sequence %d: duplicate position %d", id, position)
		}
		if len(value) != 1 || value[0] != seq.Fasta[position] {
			return fmt.Errorf("sequence %d: position %d holds %q, fasta has %q", id, position, value, seq.Fasta[position])
		}
		marks[position] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate fasta_position: %w", err)
	}
	for id, seq := range sequences {
		marks := seen[id]
		if len(marks) != len(seq.Fasta) {
			return fmt.Errorf("sequence %d: no position rows", id)
		}
		for i, ok := range marks {
			if !ok {
				return fmt.Errorf("sequence %d: missing position %d", id, i)
			}
		}
	}
	return nil
}
