package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bleue/bleue-tui/internal/clock"
	"github.com/bleue/bleue-tui/internal/logger"

	_ "modernc.org/sqlite"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS issues (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    title       TEXT,
    description TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'started', 'done', 'cancelled')),
    assigned_to TEXT,
    type        TEXT CHECK (type IS NULL OR type IN ('main', 'patch')),
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS comments (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    issue_id    INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
    comment     TEXT NOT NULL,
    source      TEXT,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_created ON issues(created_at);
CREATE INDEX IF NOT EXISTS idx_comments_issue ON comments(issue_id);
`

// Columns added after the first release. Older files get them on open.
var localAddedColumns = []struct{ name, ddl string }{
	{"assigned_to", `ALTER TABLE issues ADD COLUMN assigned_to TEXT`},
	{"type", `ALTER TABLE issues ADD COLUMN type TEXT CHECK (type IS NULL OR type IN ('main', 'patch'))`},
}

// Fixed width so that text ordering matches time ordering.
const localTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Local implements Gateway over a sqlite file. It backs offline
// development and exercises the cache against a real store in tests.
type Local struct {
	db      *sql.DB
	clock   clock.Clock
	timeout time.Duration
}

var _ Gateway = (*Local)(nil)

// OpenLocal opens (creating if needed) the sqlite database at path.
// Use ":memory:" for a throwaway store. timeout bounds each call and
// defaults to DefaultTimeout when zero.
func OpenLocal(path string, clk clock.Clock, timeout time.Duration) (*Local, error) {
	if clk == nil {
		clk = clock.Real()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and writes serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	if err := addMissingColumns(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	logger.Info("gateway: opened local store path=%s", path)
	return &Local{db: db, clock: clk, timeout: timeout}, nil
}

func addMissingColumns(db *sql.DB) error {
	rows, err := db.Query(`SELECT name FROM pragma_table_info('issues')`)
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range localAddedColumns {
		if have[col.name] {
			continue
		}
		logger.Info("gateway: adding column issues.%s", col.name)
		if _, err := db.Exec(col.ddl); err != nil {
			return err
		}
	}
	return nil
}

// bound applies the per-call deadline.
func (l *Local) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, l.timeout)
}

// fail classifies err from a call made under ctx. The driver may report
// an interrupted statement rather than the context error, so the
// context's own error is attached.
func fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return classify(op, err)
}

// Close releases the database handle.
func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) now() string {
	return l.clock.Now().UTC().Format(localTimeLayout)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (Issue, error) {
	var (
		issue              Issue
		title, assigned    sql.NullString
		workflow           sql.NullString
		status             string
		createdAt, updated string
	)
	if err := row.Scan(&issue.ID, &title, &issue.Description, &status, &assigned, &workflow, &createdAt, &updated); err != nil {
		return Issue{}, err
	}
	issue.Title = title.String
	issue.Status = ParseStatus(status)
	issue.AssignedTo = assigned.String
	issue.Workflow = ParseWorkflow(workflow.String)
	issue.CreatedAt, _ = time.Parse(localTimeLayout, createdAt)
	issue.UpdatedAt, _ = time.Parse(localTimeLayout, updated)
	return issue, nil
}

const issueColumns = `id, title, description, status, assigned_to, type, created_at, updated_at`

// ListIssues returns every issue, newest first.
func (l *Local) ListIssues(ctx context.Context) ([]Issue, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fail(ctx, "listing issues", err)
	}
	defer rows.Close()

	issues := []Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fail(ctx, "scanning issue", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(ctx, "listing issues", err)
	}
	return issues, nil
}

// GetIssue returns one issue and its comments, newest first.
func (l *Local) GetIssue(ctx context.Context, id int64) (Issue, []Comment, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	issue, err := l.getIssue(ctx, id)
	if err != nil {
		return Issue{}, nil, err
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, issue_id, comment, source, created_at FROM comments WHERE issue_id = ? ORDER BY created_at DESC, id DESC`, id)
	if err != nil {
		return Issue{}, nil, fail(ctx, "listing comments", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var (
			c         Comment
			source    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Body, &source, &createdAt); err != nil {
			return Issue{}, nil, fail(ctx, "scanning comment", err)
		}
		c.Source = source.String
		c.CreatedAt, _ = time.Parse(localTimeLayout, createdAt)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return Issue{}, nil, fail(ctx, "listing comments", err)
	}
	return issue, comments, nil
}

func (l *Local) getIssue(ctx context.Context, id int64) (Issue, error) {
	issue, err := scanIssue(l.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, fmt.Errorf("getting issue %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Issue{}, fail(ctx, fmt.Sprintf("getting issue %d", id), err)
	}
	return issue, nil
}

// CreateIssue inserts a new pending issue.
func (l *Local) CreateIssue(ctx context.Context, description, title string) (Issue, error) {
	description, err := NormalizeDescription(description)
	if err != nil {
		return Issue{}, fmt.Errorf("creating issue: %w", err)
	}
	title, err = NormalizeTitle(title)
	if err != nil {
		return Issue{}, fmt.Errorf("creating issue: %w", err)
	}

	var titleArg any
	if title != "" {
		titleArg = title
	}
	ctx, cancel := l.bound(ctx)
	defer cancel()

	now := l.now()
	issue, err := scanIssue(l.db.QueryRowContext(ctx,
		`INSERT INTO issues (title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 RETURNING `+issueColumns,
		titleArg, description, string(StatusPending), now, now))
	if err != nil {
		return Issue{}, fail(ctx, "creating issue", err)
	}
	logger.Info("gateway: created local issue id=%d", issue.ID)
	return issue, nil
}

// DeleteIssue removes an issue and, through the cascade, its comments.
func (l *Local) DeleteIssue(ctx context.Context, id int64) error {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	res, err := l.db.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return fail(ctx, fmt.Sprintf("deleting issue %d", id), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("deleting issue %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStatus moves an issue from expected to next in one conditional
// statement.
func (l *Local) UpdateStatus(ctx context.Context, id int64, expected, next Status) (Issue, error) {
	if err := CheckStatus(next); err != nil {
		return Issue{}, fmt.Errorf("updating status %d: %w", id, err)
	}
	return l.updateIfStatus(ctx, fmt.Sprintf("updating status %d", id), id, expected, "status", string(next))
}

// UpdateAssignment sets or clears the worker of a pending issue.
func (l *Local) UpdateAssignment(ctx context.Context, id int64, worker string) (Issue, error) {
	if err := CheckWorker(worker); err != nil {
		return Issue{}, fmt.Errorf("updating assignment %d: %w", id, err)
	}
	return l.updateIfStatus(ctx, fmt.Sprintf("updating assignment %d", id), id, StatusPending, "assigned_to", nullable(worker))
}

// UpdateWorkflow sets or clears the workflow of a pending issue.
func (l *Local) UpdateWorkflow(ctx context.Context, id int64, workflow Workflow) (Issue, error) {
	if err := CheckWorkflow(workflow); err != nil {
		return Issue{}, fmt.Errorf("updating workflow %d: %w", id, err)
	}
	return l.updateIfStatus(ctx, fmt.Sprintf("updating workflow %d", id), id, StatusPending, "type", nullable(string(workflow)))
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// updateIfStatus sets column while the stored status equals expected.
// column is always one of the literals above.
func (l *Local) updateIfStatus(ctx context.Context, op string, id int64, expected Status, column string, value any) (Issue, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()

	issue, err := scanIssue(l.db.QueryRowContext(ctx,
		`UPDATE issues SET `+column+` = ?, updated_at = ? WHERE id = ? AND status = ? RETURNING `+issueColumns,
		value, l.now(), id, string(expected)))
	if err == nil {
		return issue, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Issue{}, fail(ctx, op, err)
	}

	current, err := l.getIssue(ctx, id)
	if err != nil {
		return Issue{}, fmt.Errorf("%s: %w", op, err)
	}
	return Issue{}, fmt.Errorf("%s: %w: status is %s, not %s", op, ErrConflict, current.Status, expected)
}

// UpdateDescription replaces an issue's description.
func (l *Local) UpdateDescription(ctx context.Context, id int64, description string) (Issue, error) {
	description, err := NormalizeDescription(description)
	if err != nil {
		return Issue{}, fmt.Errorf("updating description %d: %w", id, err)
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	issue, err := scanIssue(l.db.QueryRowContext(ctx,
		`UPDATE issues SET description = ?, updated_at = ? WHERE id = ? RETURNING `+issueColumns,
		description, l.now(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Issue{}, fmt.Errorf("updating description %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Issue{}, fail(ctx, fmt.Sprintf("updating description %d", id), err)
	}
	return issue, nil
}

// CreateComment adds a comment to an existing issue.
func (l *Local) CreateComment(ctx context.Context, issueID int64, body string) (Comment, error) {
	body, err := NormalizeComment(body)
	if err != nil {
		return Comment{}, fmt.Errorf("creating comment: %w", err)
	}

	ctx, cancel := l.bound(ctx)
	defer cancel()

	if _, err := l.getIssue(ctx, issueID); err != nil {
		return Comment{}, fmt.Errorf("creating comment: %w", err)
	}

	c := Comment{IssueID: issueID, Body: body, Source: "tui"}
	now := l.now()
	err = l.db.QueryRowContext(ctx,
		`INSERT INTO comments (issue_id, comment, source, created_at) VALUES (?, ?, ?, ?) RETURNING id`,
		issueID, body, c.Source, now).Scan(&c.ID)
	if err != nil {
		return Comment{}, fail(ctx, "creating comment", err)
	}
	c.CreatedAt, _ = time.Parse(localTimeLayout, now)
	return c, nil
}
