// Package storage is an embedded SQLite task store that satisfies
// backend.Backend, for use when no task binary is installed.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"taskdash/internal/backend"
	"taskdash/internal/task"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrTaskClosed    = errors.New("task is already completed or deleted")
)

const timeFormat = time.RFC3339

type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ backend.Backend = (*Store)(nil)

func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("db path is empty")
	}
	if !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS tasks (
	uuid TEXT PRIMARY KEY,
	seq INTEGER NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	project TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	due TEXT DEFAULT NULL,
	start_at TEXT DEFAULT NULL,
	end_at TEXT DEFAULT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS undo_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch INTEGER NOT NULL,
	uuid TEXT NOT NULL,
	before TEXT DEFAULT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return err
	}
	return s.ensureTaskColumns()
}

func (s *Store) ensureTaskColumns() error {
	required := map[string]string{
		"annotations": "ALTER TABLE tasks ADD COLUMN annotations TEXT NOT NULL DEFAULT '[]';",
	}
	existing := map[string]struct{}{}
	rows, err := s.db.Query(`PRAGMA table_info(tasks);`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		existing[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for col, alter := range required {
		if _, ok := existing[col]; ok {
			continue
		}
		if _, err := s.db.Exec(alter); err != nil {
			return err
		}
	}
	return nil
}

// record is the stored form of one task; it is also the undo journal payload.
type record struct {
	UUID        string            `json:"uuid"`
	Seq         int               `json:"seq"`
	Description string            `json:"description"`
	Status      string            `json:"status"`
	Project     string            `json:"project"`
	Tags        string            `json:"tags"`
	Priority    string            `json:"priority"`
	Due         sql.NullString    `json:"-"`
	Start       sql.NullString    `json:"-"`
	End         sql.NullString    `json:"-"`
	DueJSON     *string           `json:"due,omitempty"`
	StartJSON   *string           `json:"start,omitempty"`
	EndJSON     *string           `json:"end,omitempty"`
	CreatedAt   string            `json:"created_at"`
	Annotations []task.Annotation `json:"annotations"`
}

const selectColumns = `uuid, seq, description, status, project, tags, priority, due, start_at, end_at, created_at, annotations`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (record, error) {
	var r record
	var annotations string
	if err := row.Scan(&r.UUID, &r.Seq, &r.Description, &r.Status, &r.Project, &r.Tags, &r.Priority,
		&r.Due, &r.Start, &r.End, &r.CreatedAt, &annotations); err != nil {
		return record{}, err
	}
	if annotations != "" {
		if err := json.Unmarshal([]byte(annotations), &r.Annotations); err != nil {
			return record{}, fmt.Errorf("task %s: annotations: %w", r.UUID, err)
		}
	}
	return r, nil
}

func (r record) toTask() (task.Task, error) {
	id, err := uuid.Parse(r.UUID)
	if err != nil {
		return task.Task{}, fmt.Errorf("task %q: %w", r.UUID, err)
	}
	t := task.Task{
		UUID:        id,
		Description: r.Description,
		Project:     r.Project,
		Tags:        task.NormalizeTags(strings.Fields(r.Tags)),
		Status:      task.Status(r.Status),
		Priority:    task.Priority(r.Priority),
		Annotations: r.Annotations,
	}
	if t.Status == task.StatusPending || t.Status == task.StatusWaiting {
		t.ID = r.Seq
	}
	t.Entry, _ = time.Parse(timeFormat, r.CreatedAt)
	if r.Due.Valid {
		t.Due, _ = time.Parse(timeFormat, r.Due.String)
	}
	if r.Start.Valid {
		t.Start, _ = time.Parse(timeFormat, r.Start.String)
	}
	t.Urgency = urgency(t)
	return t, nil
}

// urgency is a reduced form of taskwarrior's default coefficients.
func urgency(t task.Task) float64 {
	var u float64
	switch t.Priority {
	case task.PriorityHigh:
		u += 6
	case task.PriorityMedium:
		u += 3.9
	case task.PriorityLow:
		u += 1.8
	}
	if t.Active() {
		u += 4
	}
	if t.Project != "" {
		u += 1
	}
	if n := len(t.Tags); n > 0 {
		u += 0.8 + 0.1*float64(min(n, 3)-1)
	}
	if t.HasDue() {
		u += 6
	}
	return u
}

// Export returns the tasks matching filter, ordered by urgency with the
// creation sequence as tie-break. Unless filter names a status only pending
// and waiting tasks are returned.
func (s *Store) Export(ctx context.Context, filter string) ([]task.Task, error) {
	if !mentionsStatus(filter) {
		filter = backend.CombineFilters(backend.OpenFilter, filter)
	}
	where, args, err := compileFilter(filter, s.now())
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + selectColumns + ` FROM tasks`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY seq;`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []task.Task{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		t, err := r.toTask()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Urgency > tasks[j].Urgency })
	return tasks, nil
}

func (s *Store) Add(ctx context.Context, args []string) error {
	now := s.now().UTC().Format(timeFormat)
	r := record{
		UUID:      uuid.NewString(),
		Status:    string(task.StatusPending),
		CreatedAt: now,
	}
	var words []string
	for _, arg := range args {
		handled, err := applyModifier(&r, arg, s.now())
		if err != nil {
			return err
		}
		if !handled {
			words = append(words, arg)
		}
	}
	r.Description = strings.TrimSpace(strings.Join(words, " "))
	if r.Description == "" {
		return errors.New("add: description is empty")
	}

	return s.inTx(ctx, func(tx *sql.Tx, batch int64) error {
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM tasks;`).Scan(&r.Seq); err != nil {
			return err
		}
		if err := journal(ctx, tx, batch, r.UUID, nil); err != nil {
			return err
		}
		return upsert(ctx, tx, r)
	})
}

func (s *Store) Mutate(ctx context.Context, ids []uuid.UUID, op backend.Op) error {
	if len(ids) == 0 {
		return fmt.Errorf("%s: no tasks selected", op.Kind)
	}
	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx, batch int64) error {
		for _, id := range ids {
			r, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM tasks WHERE uuid = ?;`, id.String()))
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s %s: %w", op.Kind, id, ErrTaskNotFound)
			}
			if err != nil {
				return err
			}
			before := r
			if err := applyOp(&r, op, now); err != nil {
				return err
			}
			if err := journal(ctx, tx, batch, r.UUID, &before); err != nil {
				return err
			}
			if err := upsert(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyOp(r *record, op backend.Op, now time.Time) error {
	switch task.Status(r.Status) {
	case task.StatusDeleted:
		return fmt.Errorf("%s %s: %w", op.Kind, r.UUID, ErrTaskClosed)
	case task.StatusCompleted:
		switch op.Kind {
		case backend.OpDone, backend.OpStart, backend.OpModify:
			return fmt.Errorf("%s %s: %w", op.Kind, r.UUID, ErrTaskClosed)
		}
	}
	stamp := sql.NullString{String: now.UTC().Format(timeFormat), Valid: true}
	switch op.Kind {
	case backend.OpDone:
		r.Status = string(task.StatusCompleted)
		r.End = stamp
		r.Start = sql.NullString{}
	case backend.OpDelete:
		r.Status = string(task.StatusDeleted)
		r.End = stamp
		r.Start = sql.NullString{}
	case backend.OpStart:
		r.Start = stamp
	case backend.OpStop:
		r.Start = sql.NullString{}
	case backend.OpAnnotate:
		text := strings.TrimSpace(op.Text)
		if text == "" {
			return errors.New("annotate: annotation is empty")
		}
		r.Annotations = append(r.Annotations, task.Annotation{Entry: now.UTC(), Description: text})
	case backend.OpModify:
		if len(op.Args) == 0 {
			return errors.New("modify: no modifications given")
		}
		var words []string
		for _, arg := range op.Args {
			handled, err := applyModifier(r, arg, now)
			if err != nil {
				return err
			}
			if !handled {
				words = append(words, arg)
			}
		}
		if len(words) > 0 {
			r.Description = strings.Join(words, " ")
		}
	default:
		return fmt.Errorf("%s: %w", op.Kind, backend.ErrUnsupported)
	}
	return nil
}

// applyModifier applies one attribute argument; plain words are reported as
// unhandled so the caller can treat them as description text.
func applyModifier(r *record, arg string, now time.Time) (bool, error) {
	switch {
	case strings.HasPrefix(arg, "+") && len(arg) > 1:
		tags := append(strings.Fields(r.Tags), arg[1:])
		r.Tags = strings.Join(task.NormalizeTags(tags), " ")
		return true, nil
	case strings.HasPrefix(arg, "-") && len(arg) > 1:
		var kept []string
		for _, tag := range strings.Fields(r.Tags) {
			if tag != arg[1:] {
				kept = append(kept, tag)
			}
		}
		r.Tags = strings.Join(kept, " ")
		return true, nil
	}
	name, value, ok := strings.Cut(arg, ":")
	if !ok {
		return false, nil
	}
	switch canonicalAttribute(name) {
	case "project":
		r.Project = value
	case "priority":
		p, err := task.ParsePriority(value)
		if err != nil {
			return false, err
		}
		r.Priority = string(p)
	case "due":
		due, err := parseDate(value, now)
		if err != nil {
			return false, fmt.Errorf("due date invalid: %w", err)
		}
		r.Due = due
	case "description":
		r.Description = value
	default:
		return false, nil
	}
	return true, nil
}

// Undo reverts the most recent mutation batch.
func (s *Store) Undo(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var batch int64
	err = tx.QueryRowContext(ctx, `SELECT batch FROM undo_log ORDER BY id DESC LIMIT 1;`).Scan(&batch)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNothingToUndo
	}
	if err != nil {
		return err
	}
	rows, err := tx.QueryContext(ctx, `SELECT uuid, before FROM undo_log WHERE batch = ? ORDER BY id DESC;`, batch)
	if err != nil {
		return err
	}
	type entry struct {
		uuid   string
		before sql.NullString
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.uuid, &e.before); err != nil {
			rows.Close()
			return err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, e := range entries {
		if !e.before.Valid {
			if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE uuid = ?;`, e.uuid); err != nil {
				return err
			}
			continue
		}
		var r record
		if err := json.Unmarshal([]byte(e.before.String), &r); err != nil {
			return fmt.Errorf("undo journal: %w", err)
		}
		r.fromJSON()
		if err := upsert(ctx, tx, r); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM undo_log WHERE batch = ?;`, batch); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx, batch int64) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var batch int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(batch), 0) + 1 FROM undo_log;`).Scan(&batch); err != nil {
		return err
	}
	if err := fn(tx, batch); err != nil {
		return err
	}
	return tx.Commit()
}

func journal(ctx context.Context, tx *sql.Tx, batch int64, id string, before *record) error {
	var payload sql.NullString
	if before != nil {
		before.toJSON()
		data, err := json.Marshal(before)
		if err != nil {
			return err
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO undo_log (batch, uuid, before) VALUES (?, ?, ?);`, batch, id, payload)
	return err
}

func upsert(ctx context.Context, tx *sql.Tx, r record) error {
	annotations, err := json.Marshal(r.Annotations)
	if err != nil {
		return err
	}
	if r.Annotations == nil {
		annotations = []byte("[]")
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO tasks (uuid, seq, description, status, project, tags, priority, due, start_at, end_at, created_at, annotations)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(uuid) DO UPDATE SET
	description = excluded.description,
	status = excluded.status,
	project = excluded.project,
	tags = excluded.tags,
	priority = excluded.priority,
	due = excluded.due,
	start_at = excluded.start_at,
	end_at = excluded.end_at,
	annotations = excluded.annotations;`,
		r.UUID, r.Seq, r.Description, r.Status, r.Project, r.Tags, r.Priority,
		r.Due, r.Start, r.End, r.CreatedAt, string(annotations))
	return err
}

func (r *record) toJSON() {
	r.DueJSON = nullToPtr(r.Due)
	r.StartJSON = nullToPtr(r.Start)
	r.EndJSON = nullToPtr(r.End)
}

func (r *record) fromJSON() {
	r.Due = ptrToNull(r.DueJSON)
	r.Start = ptrToNull(r.StartJSON)
	r.End = ptrToNull(r.EndJSON)
}

func nullToPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func ptrToNull(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func parseDate(v string, now time.Time) (sql.NullString, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return sql.NullString{}, nil
	}
	var t time.Time
	switch strings.ToLower(v) {
	case "today":
		t = truncateDay(now)
	case "tomorrow":
		t = truncateDay(now).AddDate(0, 0, 1)
	default:
		parsed, err := time.ParseInLocation("2006-01-02", v, now.Location())
		if err != nil {
			return sql.NullString{}, err
		}
		t = parsed
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	u := url.URL{
		Scheme: "file",
		Path:   path,
	}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
