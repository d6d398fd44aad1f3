// Package memstore is an in-memory store.Backend used by the test suite and
// the demo CLI. It implements the same ordering, pending/commit/rollback,
// and search semantics as internal/store/sqlitestore without a SQLite
// dependency, so unit tests for C3/C4/C6 run fast and without a temp file.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/store"
)

// Store is a goroutine-safe, process-local store.Backend.
type Store struct {
	mu        sync.Mutex
	threads   map[string]store.Thread
	msgs      map[string]*store.MessageDoc // by id
	byThread  map[string][]string          // threadID -> message ids in insertion order
	nextOrder map[string]int64             // threadID -> next order to assign
	vectors   map[string][]float32         // embeddingID -> vector
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		threads:   make(map[string]store.Thread),
		msgs:      make(map[string]*store.MessageDoc),
		byThread:  make(map[string][]string),
		nextOrder: make(map[string]int64),
		vectors:   make(map[string][]float32),
		now:       time.Now,
	}
}

var _ store.Backend = (*Store)(nil)

func (s *Store) CreateThread(_ context.Context, in store.CreateThreadInput) (store.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := store.Thread{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Summary:   in.Summary,
		CreatedAt: s.now(),
	}
	s.threads[t.ID] = t
	return t, nil
}

func (s *Store) threadMessagesLocked(threadID string) []*store.MessageDoc {
	ids := s.byThread[threadID]
	out := make([]*store.MessageDoc, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.msgs[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].StepOrder < out[j].StepOrder
	})
	return out
}

func (s *Store) ListMessagesByThreadID(_ context.Context, in store.ListMessagesInput) (store.ListMessagesPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.threadMessagesLocked(in.ThreadID)

	statusOK := func(st store.Status) bool {
		if len(in.Statuses) == 0 {
			return true
		}
		for _, s := range in.Statuses {
			if s == st {
				return true
			}
		}
		return false
	}

	var cutoffOrder, cutoffStep int64 = -1, -1
	if in.UpToAndIncludingMessageID != "" {
		if m, ok := s.msgs[in.UpToAndIncludingMessageID]; ok {
			cutoffOrder, cutoffStep = m.Order, m.StepOrder
		}
	}

	filtered := make([]store.MessageDoc, 0, len(all))
	for _, m := range all {
		if !statusOK(m.Status) {
			continue
		}
		if in.ExcludeToolMessages && m.Tool {
			continue
		}
		if cutoffOrder >= 0 {
			if m.Order > cutoffOrder || (m.Order == cutoffOrder && m.StepOrder > cutoffStep) {
				continue
			}
		}
		filtered = append(filtered, *m)
	}

	if in.Order == "desc" {
		sort.SliceStable(filtered, func(i, j int) bool {
			if filtered[i].Order != filtered[j].Order {
				return filtered[i].Order > filtered[j].Order
			}
			return filtered[i].StepOrder > filtered[j].StepOrder
		})
	}

	start := 0
	if in.Pagination.Cursor != "" {
		if n, err := strconv.Atoi(in.Pagination.Cursor); err == nil {
			start = n
		}
	}
	num := in.Pagination.NumItems
	if num <= 0 {
		num = len(filtered)
	}
	end := start + num
	isDone := end >= len(filtered)
	if end > len(filtered) {
		end = len(filtered)
	}
	if start > len(filtered) {
		start = len(filtered)
	}

	page := filtered[start:end]
	cursor := ""
	if !isDone {
		cursor = strconv.Itoa(end)
	}

	return store.ListMessagesPage{Page: page, ContinueCursor: cursor, IsDone: isDone}, nil
}

func (s *Store) SearchMessages(_ context.Context, in store.SearchMessagesInput) ([]store.MessageDoc, error) {
	if strings.TrimSpace(in.Text) == "" && len(in.Vector) == 0 {
		return nil, agenterr.NewInvalidArgument("memstore.SearchMessages", "empty search query")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pool []*store.MessageDoc
	if in.SearchOtherThreads && in.UserID != "" {
		for _, m := range s.msgs {
			if m.UserID == in.UserID {
				pool = append(pool, m)
			}
		}
	} else {
		pool = s.threadMessagesLocked(in.ThreadID)
	}

	type scored struct {
		doc   *store.MessageDoc
		score float64
	}
	var hits []scored
	needle := strings.ToLower(in.Text)
	for _, m := range pool {
		if m.Status != store.StatusSuccess {
			continue
		}
		var score float64
		if in.TextSearch && needle != "" {
			if strings.Contains(strings.ToLower(m.Message.Text()), needle) {
				score += 1
			}
		}
		if in.VectorSearch && len(in.Vector) > 0 {
			if vec, ok := s.vectorFor(m.ID); ok {
				score += embedding.CosineSimilarity(in.Vector, vec)
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: m, score: score})
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

	seen := make(map[string]bool)
	var out []store.MessageDoc
	for _, h := range hits {
		thread := s.threadMessagesLocked(h.doc.ThreadID)
		idx := indexOf(thread, h.doc.ID)
		if idx < 0 {
			continue
		}
		lo := idx - in.MessageRange.Before
		if lo < 0 {
			lo = 0
		}
		hi := idx + in.MessageRange.After
		if hi >= len(thread) {
			hi = len(thread) - 1
		}
		for i := lo; i <= hi; i++ {
			d := *thread[i]
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func indexOf(docs []*store.MessageDoc, id string) int {
	for i, d := range docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) vectorFor(messageID string) ([]float32, bool) {
	m, ok := s.msgs[messageID]
	if !ok || m.EmbeddingID == "" {
		return nil, false
	}
	v, ok := s.vectors[m.EmbeddingID]
	return v, ok
}

func (s *Store) putVector(id string, v []float32) {
	s.vectors[id] = v
}

func (s *Store) AddMessages(_ context.Context, in store.AddMessagesInput) (store.AddMessagesResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in.FailPendingSteps {
		for _, id := range s.byThread[in.ThreadID] {
			m := s.msgs[id]
			if m.Status == store.StatusPending {
				m.Status = store.StatusFailed
				m.Error = "superseded by a new pending prompt"
				m.UpdatedAt = s.now()
			}
		}
	}

	order := s.nextOrder[in.ThreadID]
	stepOrder := int64(0)
	if in.PromptMessageID != "" {
		if prompt, ok := s.msgs[in.PromptMessageID]; ok {
			order = prompt.Order
			stepOrder = s.maxStepOrderLocked(in.ThreadID, order) + 1
		}
	} else {
		s.nextOrder[in.ThreadID] = order + 1
	}

	status := store.StatusSuccess
	if in.Pending {
		status = store.StatusPending
	}

	res := store.AddMessagesResult{}
	for i, cm := range in.Messages {
		id := uuid.NewString()
		doc := &store.MessageDoc{
			ID:        id,
			ThreadID:  in.ThreadID,
			UserID:    in.UserID,
			AgentName: in.AgentName,
			Order:     order,
			StepOrder: stepOrder,
			Status:    status,
			Message:   cm,
			Tool:      cm.IsTool(),
			CreatedAt: s.now(),
			UpdatedAt: s.now(),
		}
		stepOrder++
		if in.Embeddings != nil && i < len(in.Embeddings.Vectors) && in.Embeddings.Vectors[i] != nil {
			doc.EmbeddingID = id
			s.putVector(id, in.Embeddings.Vectors[i])
		}
		s.msgs[id] = doc
		s.byThread[in.ThreadID] = append(s.byThread[in.ThreadID], id)
		res.MessageIDs = append(res.MessageIDs, id)
		res.LastMessageID = id
	}
	return res, nil
}

func (s *Store) maxStepOrderLocked(threadID string, order int64) int64 {
	var max int64 = -1
	for _, id := range s.byThread[threadID] {
		m := s.msgs[id]
		if m.Order == order && m.StepOrder > max {
			max = m.StepOrder
		}
	}
	return max
}

func (s *Store) AddStep(_ context.Context, in store.AddStepInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompt, ok := s.msgs[in.PromptMessageID]
	if !ok {
		return agenterr.WrapStorage("memstore.AddStep", errNotFound(in.PromptMessageID))
	}

	nextStep := s.maxStepOrderLocked(in.ThreadID, prompt.Order) + 1
	for i, cm := range in.Step.NewMessages {
		id := uuid.NewString()
		doc := &store.MessageDoc{
			ID:        id,
			ThreadID:  in.ThreadID,
			UserID:    prompt.UserID,
			AgentName: prompt.AgentName,
			Order:     prompt.Order,
			StepOrder: nextStep,
			Status:    store.StatusSuccess,
			Message:   cm,
			Tool:      cm.IsTool(),
			Provider:  in.Provider,
			Model:     in.Model,
			CreatedAt: s.now(),
			UpdatedAt: s.now(),
		}
		nextStep++
		if in.Step.Embeddings != nil && i < len(in.Step.Embeddings.Vectors) && in.Step.Embeddings.Vectors[i] != nil {
			doc.EmbeddingID = id
			s.putVector(id, in.Step.Embeddings.Vectors[i])
		}
		s.msgs[id] = doc
		s.byThread[in.ThreadID] = append(s.byThread[in.ThreadID], id)
	}
	return nil
}

func (s *Store) CommitMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return agenterr.WrapStorage("memstore.CommitMessage", errNotFound(messageID))
	}
	if m.Status != store.StatusPending {
		return nil
	}
	m.Status = store.StatusSuccess
	m.UpdatedAt = s.now()
	return nil
}

func (s *Store) RollbackMessage(_ context.Context, messageID string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return agenterr.WrapStorage("memstore.RollbackMessage", errNotFound(messageID))
	}
	if m.Status != store.StatusPending {
		return nil
	}
	m.Status = store.StatusFailed
	m.Error = errMsg
	m.UpdatedAt = s.now()
	return nil
}

func (s *Store) FailStalePending(_ context.Context, threadID string, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range s.byThread[threadID] {
		m := s.msgs[id]
		if m.Status == store.StatusPending && m.CreatedAt.Before(before) {
			m.Status = store.StatusFailed
			m.Error = "failed by stale-pending sweep"
			m.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

type notFoundErr string

func (e notFoundErr) Error() string { return "message not found: " + string(e) }

func errNotFound(id string) error { return notFoundErr(id) }
