// Package sqlitestore is a durable store.Backend backed by
// modernc.org/sqlite (pure Go, no cgo): WAL mode for concurrent reads during
// a write, one file per deployment, and a schema kept deliberately small. It
// adds an FTS5 virtual table so SearchMessages can do text search alongside
// the brute-force cosine-similarity vector search.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
)

// Store is a local SQLite-backed persistence layer for threads and messages.
//
// Notes:
//   - WAL is enabled so readers on other connections to the same file are not
//     blocked by an in-flight write. Within one Store the single connection
//     below serializes reads (context fetch, search) behind an open write
//     transaction (a saveStep call).
//   - sql.DB is restricted to a single open connection: SQLite serializes
//     writers anyway, and modernc.org/sqlite's driver is not safe for
//     unbounded concurrent connections against one file.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the SQLite file at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("sqlitestore: missing db path")
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlitestore: %w", err)
		}
	}

	db, err := sql.Open("sqlite", p+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: schema: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS threads (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL DEFAULT '',
  title      TEXT NOT NULL DEFAULT '',
  summary    TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
  id           TEXT PRIMARY KEY,
  thread_id    TEXT NOT NULL,
  user_id      TEXT NOT NULL DEFAULT '',
  agent_name   TEXT NOT NULL DEFAULT '',
  msg_order    INTEGER NOT NULL,
  step_order   INTEGER NOT NULL,
  status       TEXT NOT NULL,
  message_json TEXT NOT NULL,
  text_content TEXT NOT NULL DEFAULT '',
  is_tool      INTEGER NOT NULL DEFAULT 0,
  provider     TEXT NOT NULL DEFAULT '',
  model        TEXT NOT NULL DEFAULT '',
  embedding_id TEXT NOT NULL DEFAULT '',
  error        TEXT NOT NULL DEFAULT '',
  created_at_unix_ms INTEGER NOT NULL,
  updated_at_unix_ms INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_thread_order ON messages(thread_id, msg_order, step_order);
CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id);

CREATE TABLE IF NOT EXISTS embeddings (
  id         TEXT PRIMARY KEY,
  dimension  INTEGER NOT NULL,
  model      TEXT NOT NULL DEFAULT '',
  vector_json TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
  message_id UNINDEXED,
  text_content
);
`
	_, err := db.Exec(schema)
	return err
}

var _ store.Backend = (*Store)(nil)

func (s *Store) CreateThread(ctx context.Context, in store.CreateThreadInput) (store.Thread, error) {
	t := store.Thread{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Summary:   in.Summary,
		CreatedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, user_id, title, summary, created_at_unix_ms) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Summary, t.CreatedAt.UnixMilli())
	if err != nil {
		return store.Thread{}, agenterr.WrapStorage("sqlitestore.CreateThread", err)
	}
	return t, nil
}

func (s *Store) ListMessagesByThreadID(ctx context.Context, in store.ListMessagesInput) (store.ListMessagesPage, error) {
	order := "ASC"
	if in.Order == "desc" {
		order = "DESC"
	}

	var cutoffOrder, cutoffStep int64 = -1, -1
	if in.UpToAndIncludingMessageID != "" {
		row := s.db.QueryRowContext(ctx, `SELECT msg_order, step_order FROM messages WHERE id = ?`, in.UpToAndIncludingMessageID)
		_ = row.Scan(&cutoffOrder, &cutoffStep)
	}

	q := strings.Builder{}
	q.WriteString(`SELECT id, thread_id, user_id, agent_name, msg_order, step_order, status, message_json, is_tool, provider, model, embedding_id, error, created_at_unix_ms, updated_at_unix_ms FROM messages WHERE thread_id = ?`)
	args := []any{in.ThreadID}

	if in.ExcludeToolMessages {
		q.WriteString(` AND is_tool = 0`)
	}
	if len(in.Statuses) > 0 {
		q.WriteString(` AND status IN (`)
		for i, st := range in.Statuses {
			if i > 0 {
				q.WriteString(`,`)
			}
			q.WriteString(`?`)
			args = append(args, string(st))
		}
		q.WriteString(`)`)
	}
	if cutoffOrder >= 0 {
		q.WriteString(` AND (msg_order < ? OR (msg_order = ? AND step_order <= ?))`)
		args = append(args, cutoffOrder, cutoffOrder, cutoffStep)
	}
	fmt.Fprintf(&q, ` ORDER BY msg_order %s, step_order %s`, order, order)

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return store.ListMessagesPage{}, agenterr.WrapStorage("sqlitestore.ListMessagesByThreadID", err)
	}
	defer rows.Close()

	all, err := scanMessages(rows)
	if err != nil {
		return store.ListMessagesPage{}, agenterr.WrapStorage("sqlitestore.ListMessagesByThreadID", err)
	}

	start := 0
	if in.Pagination.Cursor != "" {
		for i, m := range all {
			if m.ID == in.Pagination.Cursor {
				start = i + 1
				break
			}
		}
	}
	num := in.Pagination.NumItems
	if num <= 0 {
		num = len(all)
	}
	end := start + num
	isDone := end >= len(all)
	if end > len(all) {
		end = len(all)
	}
	if start > len(all) {
		start = len(all)
	}
	page := all[start:end]
	cursor := ""
	if !isDone && len(page) > 0 {
		cursor = page[len(page)-1].ID
	}

	return store.ListMessagesPage{Page: page, ContinueCursor: cursor, IsDone: isDone}, nil
}

func scanMessages(rows *sql.Rows) ([]store.MessageDoc, error) {
	var out []store.MessageDoc
	for rows.Next() {
		var m store.MessageDoc
		var status string
		var msgJSON string
		var isTool int
		var createdMs, updatedMs int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.UserID, &m.AgentName, &m.Order, &m.StepOrder, &status, &msgJSON, &isTool, &m.Provider, &m.Model, &m.EmbeddingID, &m.Error, &createdMs, &updatedMs); err != nil {
			return nil, err
		}
		m.Status = store.Status(status)
		m.Tool = isTool != 0
		m.CreatedAt = time.UnixMilli(createdMs)
		m.UpdatedAt = time.UnixMilli(updatedMs)
		if err := json.Unmarshal([]byte(msgJSON), &m.Message); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) SearchMessages(ctx context.Context, in store.SearchMessagesInput) ([]store.MessageDoc, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Vector) == 0 {
		return nil, agenterr.NewInvalidArgument("sqlitestore.SearchMessages", "empty search query")
	}

	scope := `thread_id = ?`
	args := []any{in.ThreadID}
	if in.SearchOtherThreads && in.UserID != "" {
		scope = `user_id = ?`
		args = []any{in.UserID}
	}

	type hit struct {
		id    string
		score float64
	}
	scores := map[string]float64{}

	if in.TextSearch && strings.TrimSpace(in.Text) != "" {
		q := fmt.Sprintf(`
SELECT m.id, bm25(messages_fts) FROM messages_fts
JOIN messages m ON m.id = messages_fts.message_id
WHERE messages_fts.text_content MATCH ? AND m.status = 'success' AND m.%s`, scope)
		rows, err := s.db.QueryContext(ctx, q, append([]any{ftsQuery(in.Text)}, args...)...)
		if err != nil {
			return nil, agenterr.WrapStorage("sqlitestore.SearchMessages", err)
		}
		for rows.Next() {
			var id string
			var bm25 float64
			if err := rows.Scan(&id, &bm25); err != nil {
				rows.Close()
				return nil, agenterr.WrapStorage("sqlitestore.SearchMessages", err)
			}
			scores[id] += -bm25 // bm25() is lower-is-better; invert so higher is better
		}
		rows.Close()
	}

	if in.VectorSearch && len(in.Vector) > 0 {
		q := fmt.Sprintf(`
SELECT m.id, e.vector_json FROM messages m
JOIN embeddings e ON e.id = m.embedding_id
WHERE m.status = 'success' AND m.%s AND m.embedding_id != ''`, scope)
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, agenterr.WrapStorage("sqlitestore.SearchMessages", err)
		}
		for rows.Next() {
			var id, vecJSON string
			if err := rows.Scan(&id, &vecJSON); err != nil {
				rows.Close()
				return nil, agenterr.WrapStorage("sqlitestore.SearchMessages", err)
			}
			var vec []float32
			if err := json.Unmarshal([]byte(vecJSON), &vec); err == nil {
				scores[id] += embedding.CosineSimilarity(in.Vector, vec)
			}
		}
		rows.Close()
	}

	var hits []hit
	for id, sc := range scores {
		if sc > 0 {
			hits = append(hits, hit{id: id, score: sc})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	seen := map[string]bool{}
	var out []store.MessageDoc
	for _, h := range hits {
		window, err := s.rangeAround(ctx, h.id, in.MessageRange)
		if err != nil {
			return nil, err
		}
		for _, d := range window {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func ftsQuery(text string) string {
	// FTS5 query syntax treats bare punctuation as a syntax error; quote the
	// whole phrase so arbitrary user text is always a valid MATCH argument.
	escaped := strings.ReplaceAll(text, `"`, `""`)
	return `"` + escaped + `"`
}

func (s *Store) rangeAround(ctx context.Context, messageID string, r store.MessageRange) ([]store.MessageDoc, error) {
	var threadID string
	var order, stepOrder int64
	row := s.db.QueryRowContext(ctx, `SELECT thread_id, msg_order, step_order FROM messages WHERE id = ?`, messageID)
	if err := row.Scan(&threadID, &order, &stepOrder); err != nil {
		return nil, agenterr.WrapStorage("sqlitestore.rangeAround", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, user_id, agent_name, msg_order, step_order, status, message_json, is_tool, provider, model, embedding_id, error, created_at_unix_ms, updated_at_unix_ms
		 FROM messages WHERE thread_id = ? ORDER BY msg_order ASC, step_order ASC`, threadID)
	if err != nil {
		return nil, agenterr.WrapStorage("sqlitestore.rangeAround", err)
	}
	defer rows.Close()
	all, err := scanMessages(rows)
	if err != nil {
		return nil, agenterr.WrapStorage("sqlitestore.rangeAround", err)
	}

	idx := -1
	for i, d := range all {
		if d.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}
	lo, hi := idx-r.Before, idx+r.After
	if lo < 0 {
		lo = 0
	}
	if hi >= len(all) {
		hi = len(all) - 1
	}
	return all[lo : hi+1], nil
}

func (s *Store) AddMessages(ctx context.Context, in store.AddMessagesInput) (res store.AddMessagesResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, agenterr.WrapStorage("sqlitestore.AddMessages", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if in.FailPendingSteps {
		if _, err = tx.ExecContext(ctx,
			`UPDATE messages SET status = 'failed', error = 'superseded by a new pending prompt', updated_at_unix_ms = ?
			 WHERE thread_id = ? AND status = 'pending'`, time.Now().UnixMilli(), in.ThreadID); err != nil {
			return res, agenterr.WrapStorage("sqlitestore.AddMessages", err)
		}
	}

	order, stepOrder, err := s.orderForLocked(ctx, tx, in.ThreadID, in.PromptMessageID)
	if err != nil {
		return res, err
	}

	status := string(store.StatusSuccess)
	if in.Pending {
		status = string(store.StatusPending)
	}

	for i, cm := range in.Messages {
		id := uuid.NewString()
		var err2 error
		embeddingID := ""
		if in.Embeddings != nil && i < len(in.Embeddings.Vectors) && in.Embeddings.Vectors[i] != nil {
			embeddingID = id
			err2 = insertEmbedding(ctx, tx, embeddingID, in.Embeddings.Vectors[i], in.Embeddings.Dimension, in.Embeddings.Model)
		}
		if err2 != nil {
			return res, agenterr.WrapStorage("sqlitestore.AddMessages", err2)
		}
		if err = insertMessage(ctx, tx, id, in.ThreadID, in.UserID, in.AgentName, order, stepOrder, status, cm, embeddingID, "", ""); err != nil {
			return res, agenterr.WrapStorage("sqlitestore.AddMessages", err)
		}
		stepOrder++
		res.MessageIDs = append(res.MessageIDs, id)
		res.LastMessageID = id
	}

	if err = tx.Commit(); err != nil {
		return res, agenterr.WrapStorage("sqlitestore.AddMessages", err)
	}
	return res, nil
}

// orderForLocked computes the (order, starting stepOrder) for a batch of new
// messages: a fresh order for a new prompt, or the prompt's own order with
// the next free stepOrder when messages are step children of an existing
// prompt message.
func (s *Store) orderForLocked(ctx context.Context, tx *sql.Tx, threadID, promptMessageID string) (int64, int64, error) {
	if promptMessageID != "" {
		var order int64
		row := tx.QueryRowContext(ctx, `SELECT msg_order FROM messages WHERE id = ?`, promptMessageID)
		if err := row.Scan(&order); err != nil {
			return 0, 0, agenterr.WrapStorage("sqlitestore.orderFor", err)
		}
		next, err := maxStepOrder(ctx, tx, threadID, order)
		if err != nil {
			return 0, 0, err
		}
		return order, next + 1, nil
	}

	var maxOrder sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(msg_order) FROM messages WHERE thread_id = ?`, threadID)
	if err := row.Scan(&maxOrder); err != nil {
		return 0, 0, agenterr.WrapStorage("sqlitestore.orderFor", err)
	}
	next := int64(0)
	if maxOrder.Valid {
		next = maxOrder.Int64 + 1
	}
	return next, 0, nil
}

func maxStepOrder(ctx context.Context, tx *sql.Tx, threadID string, order int64) (int64, error) {
	var maxStep sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(step_order) FROM messages WHERE thread_id = ? AND msg_order = ?`, threadID, order)
	if err := row.Scan(&maxStep); err != nil {
		return 0, agenterr.WrapStorage("sqlitestore.maxStepOrder", err)
	}
	if !maxStep.Valid {
		return -1, nil
	}
	return maxStep.Int64, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, id, threadID, userID, agentName string, order, stepOrder int64, status string, cm messages.CoreMessage, embeddingID, provider, model string) error {
	b, err := json.Marshal(cm)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	now := time.Now().UnixMilli()
	isTool := 0
	if cm.IsTool() {
		isTool = 1
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO messages (id, thread_id, user_id, agent_name, msg_order, step_order, status, message_json, text_content, is_tool, provider, model, embedding_id, error, created_at_unix_ms, updated_at_unix_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?)`,
		id, threadID, userID, agentName, order, stepOrder, status, string(b), cm.Text(), isTool, provider, model, embeddingID, now, now); err != nil {
		return err
	}
	if !cm.IsTool() && cm.Text() != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages_fts (message_id, text_content) VALUES (?, ?)`, id, cm.Text()); err != nil {
			return err
		}
	}
	return nil
}

func insertEmbedding(ctx context.Context, tx *sql.Tx, id string, vec []float32, dim int, model string) error {
	b, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO embeddings (id, dimension, model, vector_json) VALUES (?, ?, ?, ?)`, id, dim, model, string(b))
	return err
}

func (s *Store) AddStep(ctx context.Context, in store.AddStepInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agenterr.WrapStorage("sqlitestore.AddStep", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var order int64
	var userID, agentName string
	row := tx.QueryRowContext(ctx, `SELECT msg_order, user_id, agent_name FROM messages WHERE id = ?`, in.PromptMessageID)
	if err = row.Scan(&order, &userID, &agentName); err != nil {
		return agenterr.WrapStorage("sqlitestore.AddStep", err)
	}

	nextStep, err := maxStepOrder(ctx, tx, in.ThreadID, order)
	if err != nil {
		return err
	}
	nextStep++

	for i, cm := range in.Step.NewMessages {
		id := uuid.NewString()
		embeddingID := ""
		if in.Step.Embeddings != nil && i < len(in.Step.Embeddings.Vectors) && in.Step.Embeddings.Vectors[i] != nil {
			embeddingID = id
			if err = insertEmbedding(ctx, tx, embeddingID, in.Step.Embeddings.Vectors[i], in.Step.Embeddings.Dimension, in.Step.Embeddings.Model); err != nil {
				return agenterr.WrapStorage("sqlitestore.AddStep", err)
			}
		}
		if err = insertMessage(ctx, tx, id, in.ThreadID, userID, agentName, order, nextStep, string(store.StatusSuccess), cm, embeddingID, in.Provider, in.Model); err != nil {
			return agenterr.WrapStorage("sqlitestore.AddStep", err)
		}
		nextStep++
	}

	if err = tx.Commit(); err != nil {
		return agenterr.WrapStorage("sqlitestore.AddStep", err)
	}
	return nil
}

func (s *Store) CommitMessage(ctx context.Context, messageID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'success', updated_at_unix_ms = ? WHERE id = ? AND status = 'pending'`,
		time.Now().UnixMilli(), messageID)
	if err != nil {
		return agenterr.WrapStorage("sqlitestore.CommitMessage", err)
	}
	return nil
}

func (s *Store) RollbackMessage(ctx context.Context, messageID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'failed', error = ?, updated_at_unix_ms = ? WHERE id = ? AND status = 'pending'`,
		errMsg, time.Now().UnixMilli(), messageID)
	if err != nil {
		return agenterr.WrapStorage("sqlitestore.RollbackMessage", err)
	}
	return nil
}

func (s *Store) FailStalePending(ctx context.Context, threadID string, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = 'failed', error = 'failed by stale-pending sweep', updated_at_unix_ms = ?
		 WHERE thread_id = ? AND status = 'pending' AND created_at_unix_ms < ?`,
		time.Now().UnixMilli(), threadID, before.UnixMilli())
	if err != nil {
		return 0, agenterr.WrapStorage("sqlitestore.FailStalePending", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, agenterr.WrapStorage("sqlitestore.FailStalePending", err)
	}
	return int(n), nil
}
