// Package contextretrieval merges a thread's recent-message window with a
// text/vector search over the thread's (or the user's) history into the
// single ordered, de-duplicated, orphan-filtered message list the
// orchestrator folds into a provider call.
package contextretrieval

import (
	"context"
	"sort"

	"github.com/redeven/agentcore/internal/agenterr"
	"github.com/redeven/agentcore/internal/embedding"
	"github.com/redeven/agentcore/internal/messages"
	"github.com/redeven/agentcore/internal/store"
)

// SearchOptions is the shallow-merged result of call-site search options over
// agent defaults. A Limit of zero means "do not search" only when both
// TextSearch and VectorSearch are false; a non-zero Limit with both false is
// simply unused.
type SearchOptions struct {
	TextSearch         bool
	VectorSearch       bool
	Limit              int
	MessageRangeBefore int
	MessageRangeAfter  int
	SearchOtherThreads bool
	VectorModel        string
}

// Options bundles the recency and search knobs that can come from either a
// call site or an agent default.
type Options struct {
	// RecentMessages is a pointer so the zero value (explicit 0, "no recent
	// window") can be told apart from "unset, use the default of 100".
	RecentMessages *int
	// ExcludeToolMessages defaults to true. IncludeToolCalls is a legacy
	// alias: when set to true it flips ExcludeToolMessages to false, win or
	// lose over an explicit ExcludeToolMessages=true (the legacy flag is the
	// less-surprising choice for callers who have not migrated).
	ExcludeToolMessages *bool
	IncludeToolCalls    *bool
	Search              SearchOptions
}

func (o Options) excludeToolMessages() bool {
	if o.IncludeToolCalls != nil && *o.IncludeToolCalls {
		return false
	}
	if o.ExcludeToolMessages != nil {
		return *o.ExcludeToolMessages
	}
	return true
}

func (o Options) recentMessages() int {
	if o.RecentMessages == nil {
		return 100
	}
	return *o.RecentMessages
}

// Input is the argument record for Retrieve.
type Input struct {
	UserID                    string
	ThreadID                  string
	Messages                  []messages.CoreMessage
	UpToAndIncludingMessageID string
	Options                   Options

	// EmbedModel is the agent's configured embedding model, nil if none (for
	// example an Anthropic-only agent). Required only when Options.Search.VectorSearch
	// is true and the caller wants it honored; if nil, vector search is
	// silently skipped rather than failing.
	EmbedModel embedding.Model

	// ActionScopeGranted authorizes SearchOtherThreads: scanning a user's
	// other threads requires an action-scope capability, not just a
	// read-only one. Without it the call fails Unsupported.
	ActionScopeGranted bool
}

// Result is the merged, ordered, de-duplicated, orphan-filtered context.
type Result struct {
	Messages []store.MessageDoc
}

// Retrieve merges the thread's recent-message window with any requested
// text/vector search hits into one ordered, de-duplicated, orphan-filtered
// list of messages.
func (r *Retriever) Retrieve(ctx context.Context, in Input) (Result, error) {
	if in.UserID == "" && in.ThreadID == "" {
		return Result{}, agenterr.NewInvalidArgument("contextretrieval.Retrieve", "one of userId or threadId is required")
	}
	if in.Options.Search.SearchOtherThreads && !in.ActionScopeGranted {
		return Result{}, agenterr.NewUnsupported("contextretrieval.Retrieve", "searchOtherThreads requires an action-scope capability")
	}

	included := map[string]bool{}
	var recent []store.MessageDoc

	if in.ThreadID != "" && (in.Options.recentMessages() != 0 || in.UpToAndIncludingMessageID != "") {
		page, err := r.backend.ListMessagesByThreadID(ctx, store.ListMessagesInput{
			ThreadID:                  in.ThreadID,
			ExcludeToolMessages:       in.Options.excludeToolMessages(),
			Pagination:                store.PaginationOpts{NumItems: in.Options.recentMessages()},
			UpToAndIncludingMessageID: in.UpToAndIncludingMessageID,
			Order:                     "desc",
			Statuses:                  []store.Status{store.StatusSuccess},
		})
		if err != nil {
			return Result{}, agenterr.WrapStorage("contextretrieval.Retrieve", err)
		}
		recent = reverse(page.Page)
		for _, m := range recent {
			included[m.ID] = true
		}
	}

	var searchHits []store.MessageDoc
	if in.Options.Search.TextSearch || in.Options.Search.VectorSearch {
		hits, err := r.search(ctx, in, recent)
		if err != nil {
			return Result{}, err
		}
		for _, m := range hits {
			if !included[m.ID] {
				searchHits = append(searchHits, m)
				included[m.ID] = true
			}
		}
	}

	combined := append(searchHits, recent...)
	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Order != combined[j].Order {
			return combined[i].Order < combined[j].Order
		}
		return combined[i].StepOrder < combined[j].StepOrder
	})

	filtered := filterOrphanToolMessages(combined, r.onOrphanDropped)

	return Result{Messages: filtered}, nil
}

func reverse(docs []store.MessageDoc) []store.MessageDoc {
	out := make([]store.MessageDoc, len(docs))
	for i, d := range docs {
		out[len(docs)-1-i] = d
	}
	return out
}

// search resolves the query text, embeds it if vector search is requested and
// an embedding model is configured, and issues the backend search.
func (r *Retriever) search(ctx context.Context, in Input, recent []store.MessageDoc) ([]store.MessageDoc, error) {
	queryText := lastMessageText(in.Messages)
	if in.UpToAndIncludingMessageID != "" {
		for _, m := range recent {
			if m.ID == in.UpToAndIncludingMessageID {
				queryText = m.Message.Text() + " " + queryText
				break
			}
		}
	}

	searchIn := store.SearchMessagesInput{
		UserID:             in.UserID,
		ThreadID:           in.ThreadID,
		Text:               queryText,
		TextSearch:         in.Options.Search.TextSearch,
		VectorSearch:       in.Options.Search.VectorSearch,
		Limit:              nonZero(in.Options.Search.Limit, 10),
		MessageRange: store.MessageRange{
			Before: nonZero(in.Options.Search.MessageRangeBefore, 2),
			After:  nonZero(in.Options.Search.MessageRangeAfter, 1),
		},
		SearchOtherThreads: in.Options.Search.SearchOtherThreads,
	}

	if in.Options.Search.VectorSearch && in.EmbedModel != nil && queryText != "" {
		vecs, err := in.EmbedModel.EmbedBatch(ctx, []string{queryText})
		if err != nil {
			return nil, agenterr.WrapProvider("contextretrieval.search", err)
		}
		if len(vecs) == 1 {
			searchIn.Vector = vecs[0]
			searchIn.VectorModel = in.EmbedModel.ModelID()
		}
	} else {
		searchIn.VectorSearch = false
	}

	if !searchIn.TextSearch && !searchIn.VectorSearch {
		return nil, nil
	}

	hits, err := r.backend.SearchMessages(ctx, searchIn)
	if err != nil {
		return nil, agenterr.WrapStorage("contextretrieval.search", err)
	}
	return hits, nil
}

func lastMessageText(msgs []messages.CoreMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if t := msgs[i].Text(); t != "" {
			return t
		}
	}
	return ""
}

func nonZero(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// filterOrphanToolMessages drops tool messages the model never asked for: a
// tool message survives only if at least one of its tool-result ids matches
// a tool-call id an earlier assistant message in the same list announced.
// A tool message is built from one batch of tool results gathered in
// response to one step, so in practice every result in it shares the same
// fate (all announced or all orphaned) — the any-vs-every distinction only
// bites a message hand-assembled from multiple unrelated tool results, which
// nothing in this codebase constructs. onDropped, if non-nil, is invoked
// once per dropped message id.
func filterOrphanToolMessages(docs []store.MessageDoc, onDropped func(messageID string)) []store.MessageDoc {
	announced := map[string]bool{}
	out := make([]store.MessageDoc, 0, len(docs))
	for _, d := range docs {
		for _, id := range d.Message.ToolCallIDs() {
			announced[id] = true
		}
		if d.Message.Role == messages.RoleTool {
			keep := false
			for _, id := range d.Message.ToolResultIDs() {
				if announced[id] {
					keep = true
					break
				}
			}
			if !keep {
				if onDropped != nil {
					onDropped(d.ID)
				}
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

// Retriever is the configured Context Retriever.
type Retriever struct {
	backend         store.Backend
	onOrphanDropped func(messageID string)
}

// New builds a Retriever backed by the given store. onOrphanDropped, if
// non-nil, is called for every tool message the orphan filter drops — hosts
// typically wire it to a logger.
func New(backend store.Backend, onOrphanDropped func(messageID string)) *Retriever {
	return &Retriever{backend: backend, onOrphanDropped: onOrphanDropped}
}
