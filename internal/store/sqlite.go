package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/learning"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite implements Store on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and migrates) the database at path. The parent
// directory is created if missing. Pass ":memory:" for an ephemeral
// database.
func NewSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS learnings (
		id            TEXT PRIMARY KEY,
		project_id    TEXT NOT NULL,
		type          TEXT NOT NULL,
		content       TEXT NOT NULL,
		context       TEXT NOT NULL DEFAULT '',
		check_pattern TEXT NOT NULL DEFAULT '',
		content_hash  TEXT NOT NULL,
		embedding     BLOB,
		domains       TEXT NOT NULL DEFAULT '',
		usage_count   INTEGER NOT NULL DEFAULT 0,
		last_used_at  TIMESTAMP,
		created_at    TIMESTAMP NOT NULL,
		pinned_at     TIMESTAMP,
		muted_at      TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_learnings_project ON learnings(project_id, type);
	CREATE INDEX IF NOT EXISTS idx_learnings_hash ON learnings(project_id, type, content_hash);

	CREATE TABLE IF NOT EXISTS pending_learnings (
		id           TEXT PRIMARY KEY,
		project_id   TEXT NOT NULL,
		type         TEXT NOT NULL,
		content      TEXT NOT NULL,
		context      TEXT NOT NULL DEFAULT '',
		domains      TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL DEFAULT 'pending',
		source       TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_project ON pending_learnings(project_id, status);

	CREATE TABLE IF NOT EXISTS compiled_caches (
		project_id       TEXT NOT NULL,
		tier             INTEGER NOT NULL,
		compiled_context TEXT NOT NULL,
		token_estimate   INTEGER NOT NULL,
		learning_count   INTEGER NOT NULL,
		invariant_count  INTEGER NOT NULL,
		compiled_at      TIMESTAMP NOT NULL,
		invalidated_at   TIMESTAMP,
		compiler_model   TEXT NOT NULL,
		PRIMARY KEY (project_id, tier)
	);

	CREATE TABLE IF NOT EXISTS cooccurrence_pairs (
		project_id     TEXT NOT NULL,
		item_a         TEXT NOT NULL,
		item_b         TEXT NOT NULL,
		count          INTEGER NOT NULL DEFAULT 0,
		positive_count INTEGER NOT NULL DEFAULT 0,
		last_seen      TIMESTAMP NOT NULL,
		PRIMARY KEY (project_id, item_a, item_b)
	);

	CREATE TABLE IF NOT EXISTS links (
		project_id TEXT NOT NULL,
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		link_type  TEXT NOT NULL,
		strength   REAL NOT NULL,
		source     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (project_id, from_id, to_id, link_type)
	);

	CREATE TABLE IF NOT EXISTS learning_queue (
		id              TEXT PRIMARY KEY,
		project_id      TEXT NOT NULL,
		conversation_id TEXT NOT NULL DEFAULT '',
		payload         TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON learning_queue(project_id, status);

	CREATE TABLE IF NOT EXISTS project_settings (
		project_id     TEXT PRIMARY KEY,
		conductor_lens REAL NOT NULL DEFAULT 1.0,
		focus_domains  TEXT NOT NULL DEFAULT '',
		critical_files TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// --- Learnings ---

func (s *SQLite) SaveLearning(ctx context.Context, l *learning.Learning) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learnings (id, project_id, type, content, context, check_pattern,
			content_hash, embedding, domains, usage_count, last_used_at, created_at, pinned_at, muted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ProjectID, string(l.Type), l.Content, l.Context, l.CheckPattern,
		learning.ContentHash(l.Content), encodeVector(l.Embedding), encodeList(l.Domains),
		l.UsageCount, l.LastUsedAt, l.CreatedAt, l.PinnedAt, l.MutedAt)
	if err != nil {
		return fmt.Errorf("failed to save learning: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateLearning(ctx context.Context, l *learning.Learning) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE learnings SET content = ?, context = ?, check_pattern = ?, content_hash = ?,
			embedding = ?, domains = ?, usage_count = ?, last_used_at = ?, pinned_at = ?, muted_at = ?
		WHERE id = ?`,
		l.Content, l.Context, l.CheckPattern, learning.ContentHash(l.Content),
		encodeVector(l.Embedding), encodeList(l.Domains), l.UsageCount, l.LastUsedAt,
		l.PinnedAt, l.MutedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update learning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const learningColumns = `id, project_id, type, content, context, check_pattern,
	embedding, domains, usage_count, last_used_at, created_at, pinned_at, muted_at`

func (s *SQLite) scanLearning(row interface{ Scan(...any) error }) (*learning.Learning, error) {
	var (
		l       learning.Learning
		typ     string
		blob    []byte
		domains string
	)
	err := row.Scan(&l.ID, &l.ProjectID, &typ, &l.Content, &l.Context, &l.CheckPattern,
		&blob, &domains, &l.UsageCount, &l.LastUsedAt, &l.CreatedAt, &l.PinnedAt, &l.MutedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := learning.ParseType(typ)
	if err != nil {
		return nil, fmt.Errorf("row %s: %w", l.ID, err)
	}
	l.Type = parsed
	l.Embedding = decodeVector(blob)
	l.Domains = decodeList(domains)
	return &l, nil
}

func (s *SQLite) GetLearning(ctx context.Context, id string) (*learning.Learning, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE id = ?`, id)
	l, err := s.scanLearning(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return l, err
}

func (s *SQLite) queryLearnings(ctx context.Context, query string, args ...any) ([]*learning.Learning, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*learning.Learning
	for rows.Next() {
		l, err := s.scanLearning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) ListLearnings(ctx context.Context, projectID string) ([]*learning.Learning, error) {
	return s.queryLearnings(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE project_id = ? ORDER BY created_at DESC`,
		projectID)
}

func (s *SQLite) ListLearningsByType(ctx context.Context, projectID string, typ learning.Type) ([]*learning.Learning, error) {
	return s.queryLearnings(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE project_id = ? AND type = ? ORDER BY usage_count DESC`,
		projectID, string(typ))
}

func (s *SQLite) FindByContentHash(ctx context.Context, projectID string, typ learning.Type, hash string) (*learning.Learning, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+learningColumns+` FROM learnings WHERE project_id = ? AND type = ? AND content_hash = ?`,
		projectID, string(typ), hash)
	l, err := s.scanLearning(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return l, err
}

func (s *SQLite) BumpUsage(ctx context.Context, ids []string, usedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, usedAt)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE learnings SET usage_count = usage_count + 1, last_used_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...)
	return err
}

func (s *SQLite) DeleteLearning(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM learnings WHERE id = ?`, id)
	return err
}

// --- Pending learnings ---

func (s *SQLite) SavePending(ctx context.Context, p *learning.Pending) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_learnings (id, project_id, type, content, context, domains, status, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, string(p.Type), p.Content, p.Context, encodeList(p.Domains),
		string(p.Status), p.Source, p.CreatedAt)
	return err
}

func (s *SQLite) scanPending(row interface{ Scan(...any) error }) (*learning.Pending, error) {
	var (
		p            learning.Pending
		typ, status  string
		domains      string
	)
	err := row.Scan(&p.ID, &p.ProjectID, &typ, &p.Content, &p.Context, &domains, &status, &p.Source, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.Type, err = learning.ParseType(typ); err != nil {
		return nil, fmt.Errorf("pending row %s: %w", p.ID, err)
	}
	if p.Status, err = learning.ParsePendingStatus(status); err != nil {
		return nil, fmt.Errorf("pending row %s: %w", p.ID, err)
	}
	p.Domains = decodeList(domains)
	return &p, nil
}

const pendingColumns = `id, project_id, type, content, context, domains, status, source, created_at`

func (s *SQLite) GetPending(ctx context.Context, id string) (*learning.Pending, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_learnings WHERE id = ?`, id)
	p, err := s.scanPending(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *SQLite) ListPending(ctx context.Context, projectID string, status learning.PendingStatus) ([]*learning.Pending, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_learnings WHERE project_id = ? AND status = ? ORDER BY created_at`,
		projectID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*learning.Pending
	for rows.Next() {
		p, err := s.scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdatePendingStatus(ctx context.Context, id string, status learning.PendingStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE pending_learnings SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Compiled caches ---

func (s *SQLite) UpsertCompiledCache(ctx context.Context, c *learning.CompiledCache) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compiled_caches (project_id, tier, compiled_context, token_estimate,
			learning_count, invariant_count, compiled_at, invalidated_at, compiler_model)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(project_id, tier) DO UPDATE SET
			compiled_context = excluded.compiled_context,
			token_estimate   = excluded.token_estimate,
			learning_count   = excluded.learning_count,
			invariant_count  = excluded.invariant_count,
			compiled_at      = excluded.compiled_at,
			invalidated_at   = NULL,
			compiler_model   = excluded.compiler_model`,
		c.ProjectID, int(c.Tier), c.CompiledContext, c.TokenEstimate,
		c.LearningCount, c.InvariantCount, c.CompiledAt, c.CompilerModel)
	return err
}

func (s *SQLite) GetCompiledCache(ctx context.Context, projectID string, tier learning.Tier) (*learning.CompiledCache, error) {
	var (
		c    learning.CompiledCache
		tval int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, tier, compiled_context, token_estimate, learning_count,
			invariant_count, compiled_at, invalidated_at, compiler_model
		FROM compiled_caches
		WHERE project_id = ? AND tier = ? AND invalidated_at IS NULL`,
		projectID, int(tier)).
		Scan(&c.ProjectID, &tval, &c.CompiledContext, &c.TokenEstimate, &c.LearningCount,
			&c.InvariantCount, &c.CompiledAt, &c.InvalidatedAt, &c.CompilerModel)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Tier = learning.Tier(tval)
	return &c, nil
}

func (s *SQLite) InvalidateCaches(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE compiled_caches SET invalidated_at = ? WHERE project_id = ? AND invalidated_at IS NULL`,
		time.Now(), projectID)
	return err
}

// --- Co-occurrence ---

func (s *SQLite) UpsertPair(ctx context.Context, projectID, itemA, itemB string, positive bool) error {
	a, b, err := learning.CanonicalPair(itemA, itemB)
	if err != nil {
		return err
	}
	pos := 0
	if positive {
		pos = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cooccurrence_pairs (project_id, item_a, item_b, count, positive_count, last_seen)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(project_id, item_a, item_b) DO UPDATE SET
			count          = count + 1,
			positive_count = positive_count + excluded.positive_count,
			last_seen      = excluded.last_seen`,
		projectID, a, b, pos, time.Now())
	return err
}

func (s *SQLite) scanPairs(rows *sql.Rows) ([]*learning.Pair, error) {
	defer rows.Close()
	var out []*learning.Pair
	for rows.Next() {
		var p learning.Pair
		if err := rows.Scan(&p.ItemA, &p.ItemB, &p.Count, &p.PositiveCount, &p.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLite) GetCohorts(ctx context.Context, projectID string, minCount, limit int) ([]*learning.Pair, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_a, item_b, count, positive_count, last_seen
		FROM cooccurrence_pairs
		WHERE project_id = ? AND count >= ?
		ORDER BY count DESC
		LIMIT ?`, projectID, minCount, limit)
	if err != nil {
		return nil, err
	}
	return s.scanPairs(rows)
}

func (s *SQLite) GetPairsForItems(ctx context.Context, projectID string, ids []string) ([]*learning.Pair, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := make([]any, 0, len(ids)*2+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_a, item_b, count, positive_count, last_seen
		FROM cooccurrence_pairs
		WHERE project_id = ? AND (item_a IN (`+ph+`) OR item_b IN (`+ph+`))`, args...)
	if err != nil {
		return nil, err
	}
	return s.scanPairs(rows)
}

// --- Links ---

func (s *SQLite) UpsertLink(ctx context.Context, projectID string, l *learning.Link) error {
	if l.FromID == l.ToID {
		return learning.ErrSelfLink
	}
	if _, err := learning.ParseLinkType(string(l.Type)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (project_id, from_id, to_id, link_type, strength, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, from_id, to_id, link_type) DO UPDATE SET
			strength   = excluded.strength,
			source     = excluded.source,
			updated_at = excluded.updated_at`,
		projectID, l.FromID, l.ToID, string(l.Type), l.Strength, string(l.Source),
		l.CreatedAt, time.Now())
	return err
}

func (s *SQLite) scanLinks(rows *sql.Rows) ([]*learning.Link, error) {
	defer rows.Close()
	var out []*learning.Link
	for rows.Next() {
		var (
			l           learning.Link
			typ, source string
		)
		if err := rows.Scan(&l.FromID, &l.ToID, &typ, &l.Strength, &source, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		parsed, err := learning.ParseLinkType(typ)
		if err != nil {
			return nil, err
		}
		l.Type = parsed
		l.Source = learning.LinkSource(source)
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *SQLite) GetLinksFrom(ctx context.Context, projectID string, fromIDs []string) ([]*learning.Link, error) {
	if len(fromIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(fromIDs)+1)
	args = append(args, projectID)
	for _, id := range fromIDs {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, link_type, strength, source, created_at, updated_at
		FROM links WHERE project_id = ? AND from_id IN (`+placeholders(len(fromIDs))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return s.scanLinks(rows)
}

func (s *SQLite) GetLinksAmong(ctx context.Context, projectID string, ids []string) ([]*learning.Link, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := make([]any, 0, len(ids)*2+1)
	args = append(args, projectID)
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, link_type, strength, source, created_at, updated_at
		FROM links WHERE project_id = ? AND from_id IN (`+ph+`) AND to_id IN (`+ph+`)`, args...)
	if err != nil {
		return nil, err
	}
	return s.scanLinks(rows)
}

func (s *SQLite) ListContradictions(ctx context.Context, projectID string, minStrength float64) ([]*learning.Contradiction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.from_id, l.to_id, lf.content, lt.content, l.strength
		FROM links l
		JOIN learnings lf ON lf.id = l.from_id
		JOIN learnings lt ON lt.id = l.to_id
		WHERE l.project_id = ? AND l.link_type = ? AND l.strength >= ?
		ORDER BY l.strength DESC`,
		projectID, string(learning.LinkContradicts), minStrength)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*learning.Contradiction
	for rows.Next() {
		var c learning.Contradiction
		if err := rows.Scan(&c.FromID, &c.ToID, &c.FromContent, &c.ToContent, &c.Strength); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- Queue ---

func (s *SQLite) EnqueueItem(ctx context.Context, item *learning.QueueItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_queue (id, project_id, conversation_id, payload, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.ProjectID, item.ConversationID, item.Payload, string(item.Status),
		item.Attempts, item.LastError, item.CreatedAt, item.UpdatedAt)
	return err
}

func (s *SQLite) ClaimQueueItems(ctx context.Context, projectID string, limit int) ([]*learning.QueueItem, error) {
	query := `SELECT id FROM learning_queue WHERE status = 'pending'`
	args := []any{}
	if projectID != "" {
		query += ` AND project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Claim each candidate with a compare-and-swap so concurrent drains
	// never process the same item.
	var claimed []*learning.QueueItem
	for _, id := range candidates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE learning_queue SET status = 'processing', updated_at = ? WHERE id = ? AND status = 'pending'`,
			time.Now(), id)
		if err != nil {
			return claimed, err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue // lost the race to another drain
		}
		item, err := s.GetQueueItem(ctx, id)
		if err != nil {
			return claimed, err
		}
		claimed = append(claimed, item)
	}
	return claimed, nil
}

func (s *SQLite) GetQueueItem(ctx context.Context, id string) (*learning.QueueItem, error) {
	var (
		item   learning.QueueItem
		status string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, conversation_id, payload, status, attempts, last_error, created_at, updated_at
		FROM learning_queue WHERE id = ?`, id).
		Scan(&item.ID, &item.ProjectID, &item.ConversationID, &item.Payload, &status,
			&item.Attempts, &item.LastError, &item.CreatedAt, &item.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	item.Status = learning.QueueStatus(status)
	return &item, nil
}

func (s *SQLite) CompleteQueueItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learning_queue SET status = 'completed', updated_at = ? WHERE id = ?`,
		time.Now(), id)
	return err
}

func (s *SQLite) FailQueueItem(ctx context.Context, id string, errMsg string, terminal bool) error {
	status := string(learning.QueueStatusPending)
	if terminal {
		status = string(learning.QueueStatusFailed)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE learning_queue
		SET status = ?, attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?`,
		status, errMsg, time.Now(), id)
	return err
}

func (s *SQLite) ReleaseQueueItem(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE learning_queue SET status = 'pending', updated_at = ? WHERE id = ? AND status = 'processing'`,
		time.Now(), id)
	return err
}

// --- Settings ---

func (s *SQLite) GetSettings(ctx context.Context, projectID string) (*learning.Settings, error) {
	var (
		cfg           learning.Settings
		focus, files  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT project_id, conductor_lens, focus_domains, critical_files FROM project_settings WHERE project_id = ?`,
		projectID).Scan(&cfg.ProjectID, &cfg.ConductorLens, &focus, &files)
	if err == sql.ErrNoRows {
		return learning.DefaultSettings(projectID), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.FocusDomains = decodeList(focus)
	cfg.CriticalFiles = decodeList(files)
	return &cfg, nil
}

func (s *SQLite) SaveSettings(ctx context.Context, cfg *learning.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_settings (project_id, conductor_lens, focus_domains, critical_files)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			conductor_lens = excluded.conductor_lens,
			focus_domains  = excluded.focus_domains,
			critical_files = excluded.critical_files`,
		cfg.ProjectID, cfg.ConductorLens, encodeList(cfg.FocusDomains), encodeList(cfg.CriticalFiles))
	return err
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ Store = (*SQLite)(nil)
