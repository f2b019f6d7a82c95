package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
	"storyfeed/internal/remote/migrations"
)

var _ feed.Remote = (*SQLRemote)(nil)

// SQLRemote implements feed.Remote over database/sql. Queries are written
// once with ? placeholders and rebound for postgres.
type SQLRemote struct {
	db      *sql.DB
	dialect string
	now     func() time.Time
}

// NewSQLRemote wraps an open, migrated connection.
// The caller is responsible for ensuring the schema is current.
func NewSQLRemote(db *sql.DB, dialect string) *SQLRemote {
	return &SQLRemote{db: db, dialect: dialect, now: time.Now}
}

// OpenSQLite opens and configures a SQLite connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for an in-memory database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers anyway, and an in-memory database exists
	// only on the connection that created it.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// OpenPostgres opens a connection pool to the hosted database.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying connection for migrations.
func (r *SQLRemote) DB() *sql.DB { return r.db }

// Dialect returns the SQL dialect name.
func (r *SQLRemote) Dialect() string { return r.dialect }

func (r *SQLRemote) Close() error {
	return r.db.Close()
}

// bind rewrites ? placeholders to $n for postgres.
func (r *SQLRemote) bind(query string) string {
	if r.dialect != migrations.Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// list encodes a list-valued column for the dialect.
func (r *SQLRemote) list(values []string) any {
	if values == nil {
		values = []string{}
	}
	if r.dialect == migrations.Postgres {
		return pq.Array(values)
	}
	data, _ := json.Marshal(values)
	return string(data)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRemote) exec(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, r.bind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLRemote) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Story operations

const storyColumns = `s.id, s.author_id, s.title, s.body, s.author_display_name, s.author_display_role,
	s.created_at, s.updated_at, s.status, s.rejected_norms, s.report_count, s.attempt_count,
	(SELECT COUNT(*) FROM likes l WHERE l.story_id = s.id), s.comment_count,
	s.target_audiences, s.tagged_topics`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*model.Story, error) {
	var (
		st                       model.Story
		status                   string
		norms, audiences, topics sql.NullString
	)
	err := row.Scan(&st.ID, &st.AuthorID, &st.Title, &st.Body, &st.AuthorDisplayName, &st.AuthorDisplayRole,
		&st.CreatedAt, &st.UpdatedAt, &status, &norms, &st.ReportCount, &st.AttemptCount,
		&st.LikeCount, &st.CommentCount, &audiences, &topics)
	if err != nil {
		return nil, err
	}
	st.Status = model.Status(status)
	st.RejectedNorms = normalizeNorms(norms.String)
	st.TargetAudiences = normalizeList(audiences.String)
	st.TaggedTopics = normalizeList(topics.String)
	return &st, nil
}

func (r *SQLRemote) ListStories(ctx context.Context) ([]*model.Story, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+storyColumns+" FROM stories s ORDER BY s.created_at DESC, s.id")
	if err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning story: %w", err)
		}
		stories = append(stories, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing stories: %w", err)
	}
	return stories, nil
}

func (r *SQLRemote) getStory(ctx context.Context, q querier, id string) (*model.Story, error) {
	st, err := scanStory(q.QueryRowContext(ctx, r.bind("SELECT "+storyColumns+" FROM stories s WHERE s.id = ?"), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, feed.ErrNotFound
		}
		return nil, fmt.Errorf("getting story %s: %w", id, err)
	}
	return st, nil
}

func (r *SQLRemote) InsertStory(ctx context.Context, story *model.Story) (*model.Story, error) {
	id := uuid.New().String()
	now := r.now().UTC()
	createdAt := story.CreatedAt.UTC()
	if story.CreatedAt.IsZero() {
		createdAt = now
	}

	_, err := r.exec(ctx, r.db, `INSERT INTO stories (id, author_id, title, body, author_display_name, author_display_role,
		created_at, updated_at, status, rejected_norms, report_count, attempt_count, comment_count,
		target_audiences, tagged_topics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, ?, ?)`,
		id, story.AuthorID, story.Title, story.Body, story.AuthorDisplayName, story.AuthorDisplayRole,
		createdAt, now, string(model.StatusPending), r.list(nil), max(story.AttemptCount, 1),
		r.list(story.TargetAudiences), r.list(story.TaggedTopics))
	if err != nil {
		return nil, fmt.Errorf("inserting story: %w", err)
	}
	return r.getStory(ctx, r.db, id)
}

func (r *SQLRemote) UpdateStoryStatus(ctx context.Context, id string, status model.Status, norms []model.Norm) error {
	if status != model.StatusRejected {
		norms = nil
	}
	n, err := r.exec(ctx, r.db, "UPDATE stories SET status = ?, rejected_norms = ?, updated_at = ? WHERE id = ?",
		string(status), r.list(normsToStrings(norms)), r.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating story status: %w", err)
	}
	if n == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (r *SQLRemote) UpdateStoryContent(ctx context.Context, id, title, body string) (*model.Story, error) {
	var updated *model.Story
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, r.bind("SELECT status FROM stories WHERE id = ?"), id).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return feed.ErrNotFound
			}
			return fmt.Errorf("reading story status: %w", err)
		}

		now := r.now().UTC()
		if model.Status(status) == model.StatusRejected {
			_, err = r.exec(ctx, tx, `UPDATE stories SET title = ?, body = ?, status = ?, rejected_norms = ?,
				attempt_count = attempt_count + 1, updated_at = ? WHERE id = ?`,
				title, body, string(model.StatusPending), r.list(nil), now, id)
		} else {
			_, err = r.exec(ctx, tx, "UPDATE stories SET title = ?, body = ?, updated_at = ? WHERE id = ?",
				title, body, now, id)
		}
		if err != nil {
			return fmt.Errorf("updating story content: %w", err)
		}

		updated, err = r.getStory(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SQLRemote) DeleteStory(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		// Children are removed explicitly so postgres and sqlite behave the
		// same even when foreign keys are not enforced.
		for _, table := range []string{"comments", "reports", "likes", "bookmarks"} {
			if _, err := r.exec(ctx, tx, "DELETE FROM "+table+" WHERE story_id = ?", id); err != nil {
				return fmt.Errorf("deleting %s: %w", table, err)
			}
		}
		n, err := r.exec(ctx, tx, "DELETE FROM stories WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting story: %w", err)
		}
		if n == 0 {
			return feed.ErrNotFound
		}
		return nil
	})
}

// Report operations

func (r *SQLRemote) InsertReport(ctx context.Context, report *model.Report) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		createdAt := report.CreatedAt.UTC()
		if report.CreatedAt.IsZero() {
			createdAt = r.now().UTC()
		}
		n, err := r.exec(ctx, tx, `INSERT INTO reports (id, story_id, user_id, reason, details, created_at)
			VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT (story_id, user_id) DO NOTHING`,
			uuid.New().String(), report.StoryID, report.UserID, report.Reason, report.Details, createdAt)
		if err != nil {
			return fmt.Errorf("inserting report: %w", err)
		}
		if n == 0 {
			return feed.ErrDuplicate
		}
		n, err = r.exec(ctx, tx, "UPDATE stories SET report_count = report_count + 1 WHERE id = ?", report.StoryID)
		if err != nil {
			return fmt.Errorf("incrementing report count: %w", err)
		}
		if n == 0 {
			return feed.ErrNotFound
		}
		return nil
	})
}

func (r *SQLRemote) ClearReports(ctx context.Context, storyID string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.exec(ctx, tx, "DELETE FROM reports WHERE story_id = ?", storyID); err != nil {
			return fmt.Errorf("deleting reports: %w", err)
		}
		n, err := r.exec(ctx, tx, "UPDATE stories SET report_count = 0 WHERE id = ?", storyID)
		if err != nil {
			return fmt.Errorf("clearing report count: %w", err)
		}
		if n == 0 {
			return feed.ErrNotFound
		}
		return nil
	})
}

// Comment operations

func (r *SQLRemote) ListComments(ctx context.Context, storyID string) ([]*model.Comment, error) {
	rows, err := r.db.QueryContext(ctx, r.bind(`SELECT id, story_id, author_id, body, author_display_name,
		author_display_role, created_at FROM comments WHERE story_id = ? ORDER BY created_at, id`), storyID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var comments []*model.Comment
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.StoryID, &c.AuthorID, &c.Body, &c.AuthorDisplayName,
			&c.AuthorDisplayRole, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	return comments, nil
}

func (r *SQLRemote) CommentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT story_id, COUNT(*) FROM comments GROUP BY story_id")
	if err != nil {
		return nil, fmt.Errorf("counting comments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scanning comment count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting comments: %w", err)
	}
	return counts, nil
}

func (r *SQLRemote) InsertComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	created := comment.Clone()
	created.ID = uuid.New().String()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = r.now()
	}
	created.CreatedAt = created.CreatedAt.UTC()

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		_, err := r.exec(ctx, tx, `INSERT INTO comments (id, story_id, author_id, body, author_display_name,
			author_display_role, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			created.ID, created.StoryID, created.AuthorID, created.Body, created.AuthorDisplayName,
			created.AuthorDisplayRole, created.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting comment: %w", err)
		}
		n, err := r.exec(ctx, tx, "UPDATE stories SET comment_count = comment_count + 1 WHERE id = ?", created.StoryID)
		if err != nil {
			return fmt.Errorf("incrementing comment count: %w", err)
		}
		if n == 0 {
			return feed.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *SQLRemote) DeleteComment(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var storyID string
		err := tx.QueryRowContext(ctx, r.bind("SELECT story_id FROM comments WHERE id = ?"), id).Scan(&storyID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return feed.ErrNotFound
			}
			return fmt.Errorf("finding comment: %w", err)
		}
		if _, err := r.exec(ctx, tx, "DELETE FROM comments WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting comment: %w", err)
		}
		_, err = r.exec(ctx, tx, `UPDATE stories SET comment_count =
			CASE WHEN comment_count > 0 THEN comment_count - 1 ELSE 0 END WHERE id = ?`, storyID)
		if err != nil {
			return fmt.Errorf("decrementing comment count: %w", err)
		}
		return nil
	})
}

// Like and bookmark operations

func (r *SQLRemote) insertPair(ctx context.Context, table, storyID, userID string) error {
	n, err := r.exec(ctx, r.db, "INSERT INTO "+table+" (story_id, user_id, created_at) VALUES (?, ?, ?) ON CONFLICT (story_id, user_id) DO NOTHING",
		storyID, userID, r.now().UTC())
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	if n == 0 {
		return feed.ErrDuplicate
	}
	return nil
}

func (r *SQLRemote) deletePair(ctx context.Context, table, storyID, userID string) error {
	if _, err := r.exec(ctx, r.db, "DELETE FROM "+table+" WHERE story_id = ? AND user_id = ?", storyID, userID); err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	return nil
}

func (r *SQLRemote) listPairs(ctx context.Context, table, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.bind("SELECT story_id FROM "+table+" WHERE user_id = ? ORDER BY created_at, story_id"), userID)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	return ids, nil
}

func (r *SQLRemote) InsertLike(ctx context.Context, storyID, userID string) error {
	return r.insertPair(ctx, "likes", storyID, userID)
}

func (r *SQLRemote) DeleteLike(ctx context.Context, storyID, userID string) error {
	return r.deletePair(ctx, "likes", storyID, userID)
}

func (r *SQLRemote) ListLikes(ctx context.Context, userID string) ([]string, error) {
	return r.listPairs(ctx, "likes", userID)
}

func (r *SQLRemote) InsertBookmark(ctx context.Context, storyID, userID string) error {
	return r.insertPair(ctx, "bookmarks", storyID, userID)
}

func (r *SQLRemote) DeleteBookmark(ctx context.Context, storyID, userID string) error {
	return r.deletePair(ctx, "bookmarks", storyID, userID)
}

func (r *SQLRemote) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	return r.listPairs(ctx, "bookmarks", userID)
}

// CheckMigrations reports an error unless the schema is at the latest version.
func (r *SQLRemote) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(r.db, r.dialect)
}

// MigrateUp applies any pending schema migrations.
func (r *SQLRemote) MigrateUp() error {
	return migrations.MigrateUp(r.db, r.dialect)
}
