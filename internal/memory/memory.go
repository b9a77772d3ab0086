// Package memory combines the structured store and the optional vector
// index behind one handle.
//
// Semantic search is a capability, not a requirement: when no embedder is
// configured, the embedder fails its startup probe, or no index directory is
// set, every vector path is skipped and searches use substring matching.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/felixgeelhaar/commandecho/internal/observe"
	"github.com/felixgeelhaar/commandecho/internal/store"
	"github.com/felixgeelhaar/commandecho/internal/vector"
)

// PreferenceCategory tags memories derived from stored preferences.
const PreferenceCategory = "user_preference"

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Options struct {
	Store    store.Storage
	Embedder Embedder
	// IndexDir holds the vector index files. Empty disables semantic search.
	IndexDir string
	// StrictIndex refuses to start when the persisted index is damaged
	// instead of starting over with an empty one.
	StrictIndex bool
	Observer    *observe.Observer
}

// Stats extends the store counts with the vector index state.
type Stats struct {
	store.Stats
	VectorEntries  int    `json:"vector_entries"`
	IndexDimension int    `json:"index_dimension"`
	Semantic       bool   `json:"semantic_search"`
	IndexState     string `json:"index_state"`
}

type Manager struct {
	store    store.Storage
	embedder Embedder
	index    *vector.Index // nil when semantic search is unavailable
	dim      int           // probe dimension
	load     vector.LoadResult
	cache    *ristretto.Cache
	obs      *observe.Observer
}

// New wires the façade. It fails only when the structured store is missing,
// the persisted index disagrees with the embedder's dimension, or the index
// is damaged and StrictIndex is set.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("memory: store is required")
	}
	obs := opts.Observer
	if obs == nil {
		obs = observe.Discard()
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	m := &Manager{
		store:    opts.Store,
		embedder: opts.Embedder,
		cache:    cache,
		obs:      obs,
	}

	if opts.Embedder == nil || opts.IndexDir == "" {
		obs.Log().Info().Msg("semantic search disabled: no embedder or index directory configured")
		m.load = vector.LoadResult{State: vector.Empty, Reason: "semantic search not configured"}
		return m, nil
	}

	probe, err := opts.Embedder.Embed(ctx, "test")
	if err != nil {
		obs.Log().Warn().Err(err).Msg("embedder probe failed, semantic search disabled")
		m.load = vector.LoadResult{State: vector.Empty, Reason: "embedder unavailable", Err: err}
		return m, nil
	}

	idx, res := vector.Open(opts.IndexDir)
	if res.Err != nil {
		if opts.StrictIndex || idx == nil {
			cache.Close()
			return nil, fmt.Errorf("vector index at %s unusable: %w", opts.IndexDir, res.Err)
		}
		obs.Log().Warn().Err(res.Err).Str("dir", opts.IndexDir).Msg("vector index damaged, starting empty")
	}
	if d := idx.Dimension(); d != 0 && d != len(probe) {
		cache.Close()
		return nil, fmt.Errorf("%w: index at %s has %d dimensions, embedder produces %d",
			vector.ErrDimensionMismatch, opts.IndexDir, d, len(probe))
	}

	m.index = idx
	m.dim = len(probe)
	m.load = res
	obs.Log().Info().
		Str("state", res.State.String()).
		Int("entries", res.Entries).
		Int("dimension", m.dim).
		Msg("vector index ready")
	return m, nil
}

// SemanticAvailable reports whether vector search is in use.
func (m *Manager) SemanticAvailable() bool {
	return m.index != nil
}

// IndexLoad reports what was found on disk at startup.
func (m *Manager) IndexLoad() vector.LoadResult {
	return m.load
}

func (m *Manager) embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.cache.Set(text, vec, 1)
	return vec, nil
}

// Facts

// Remember stores value under a case-insensitive key.
func (m *Manager) Remember(ctx context.Context, key, value string) error {
	return m.store.SetFact(ctx, key, value)
}

// Recall returns the value stored by Remember.
func (m *Manager) Recall(ctx context.Context, key string) (string, bool, error) {
	return m.store.GetFact(ctx, key)
}

// Memories

// StoreMemory writes a memory record and, when semantic search is available,
// its embedding. The embedding is computed first so a dimension mismatch
// leaves both stores untouched. Other embedding failures keep the record and
// skip the vector.
func (m *Manager) StoreMemory(ctx context.Context, content, category string, meta map[string]string) (int64, error) {
	ctx, span := m.obs.StartSpan(ctx, "memory.store", "category", category)
	defer span.End()

	var vec []float32
	if m.index != nil {
		v, err := m.embed(ctx, content)
		switch {
		case err != nil:
			m.obs.Log().Warn().Err(err).Msg("embedding failed, storing memory without vector")
		case len(v) != m.expectedDim():
			return 0, fmt.Errorf("%w: expected %d dimensions, embedder produced %d",
				vector.ErrDimensionMismatch, m.expectedDim(), len(v))
		default:
			vec = v
		}
	}

	id, err := m.store.AddMemory(ctx, content, category, meta)
	if err != nil {
		return 0, err
	}

	if vec != nil {
		entry := vector.Entry{ID: id, Content: content, Category: category, Metadata: meta}
		if err := m.index.Add(ctx, entry, vec); err != nil {
			m.obs.Log().Warn().Err(err).Int("id", int(id)).Msg("failed to index memory")
			return id, nil
		}
		if err := m.index.Save(); err != nil {
			m.obs.Log().Warn().Err(err).Msg("failed to persist vector index")
		}
	}

	m.obs.Log().Debug().Int("id", int(id)).Str("category", category).Msg("memory stored")
	return id, nil
}

func (m *Manager) expectedDim() int {
	if d := m.index.Dimension(); d != 0 {
		return d
	}
	return m.dim
}

// SearchMemories returns up to limit memory contents relevant to query.
// Semantic search is tried first; when it is unavailable or fails the
// substring search of the structured store is used instead. Only
// structured-store failures are returned as errors.
func (m *Manager) SearchMemories(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ctx, span := m.obs.StartSpan(ctx, "memory.search")
	defer span.End()

	if m.index != nil && m.index.Len() > 0 {
		results, err := m.searchSemantic(ctx, query, limit)
		if err == nil {
			if len(results) < limit {
				results = append(results, m.unindexedMatches(ctx, query, limit-len(results))...)
			}
			return results, nil
		}
		m.obs.Log().Warn().Err(err).Msg("semantic search failed, falling back to text search")
	}

	recs, err := m.store.SearchText(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Content)
	}
	return out, nil
}

// unindexedMatches finds substring matches among records that have no
// vector, such as ones stored while the embedder was unreachable. Failures
// are logged and yield nothing.
func (m *Manager) unindexedMatches(ctx context.Context, query string, limit int) []string {
	st, err := m.store.Stats(ctx)
	if err != nil || st.Memories <= m.index.Len() {
		return nil
	}

	indexed := make(map[int64]bool, m.index.Len())
	for i := range m.index.Len() {
		if e, ok := m.index.Entry(i); ok {
			indexed[e.ID] = true
		}
	}
	recs, err := m.store.SearchText(ctx, query, limit+len(indexed))
	if err != nil {
		m.obs.Log().Warn().Err(err).Msg("text search for unindexed memories failed")
		return nil
	}
	var out []string
	for _, r := range recs {
		if indexed[r.ID] {
			continue
		}
		out = append(out, r.Content)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (m *Manager) searchSemantic(ctx context.Context, query string, limit int) ([]string, error) {
	vec, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := m.index.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Content)
	}
	return out, nil
}

// Preferences

// UserPreference returns def when key has never been set.
func (m *Manager) UserPreference(ctx context.Context, key, def string) (string, error) {
	return m.store.GetPreference(ctx, key, def)
}

// StoreUserPreference upserts the preference and records it as a memory so
// it can be found by search.
func (m *Manager) StoreUserPreference(ctx context.Context, key, value string) error {
	if err := m.store.SetPreference(ctx, key, value); err != nil {
		return err
	}
	content := fmt.Sprintf("User preference: %s = %s", key, value)
	_, err := m.StoreMemory(ctx, content, PreferenceCategory, map[string]string{"key": key})
	return err
}

// Conversation

func (m *Manager) RecordTurn(ctx context.Context, role, content string) error {
	_, err := m.store.RecordTurn(ctx, role, content)
	return err
}

func (m *Manager) RecentTurns(ctx context.Context, limit int) ([]store.Turn, error) {
	return m.store.RecentTurns(ctx, limit)
}

func (m *Manager) ShortTerm() []store.Turn {
	return m.store.ShortTerm()
}

// PurgeOlderThan deletes conversation turns older than the given age.
func (m *Manager) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	n, err := m.store.PurgeOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	m.obs.Log().Info().Int("deleted", int(n)).Msg("purged old conversation turns")
	return n, nil
}

func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	st, err := m.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := &Stats{
		Stats:      *st,
		Semantic:   m.index != nil,
		IndexState: m.load.State.String(),
	}
	if m.index != nil {
		out.VectorEntries = m.index.Len()
		out.IndexDimension = m.expectedDim()
	}
	return out, nil
}

// Close releases the cache and closes the store.
func (m *Manager) Close() error {
	m.cache.Close()
	return m.store.Close()
}
