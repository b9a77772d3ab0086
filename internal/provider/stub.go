package provider

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// StubDimensions is the width of the hashed bag-of-words embedding.
const StubDimensions = 256

// StubProvider is an offline provider for tests and demos. Replies are
// served from Responses in order; embeddings hash each word into a bucket
// so texts sharing words score as similar.
type StubProvider struct {
	mu sync.Mutex

	Responses []Response
	Fallback  string

	GenerateErr error
	EmbedErr    error

	Requests []Request
}

func NewStubProvider() *StubProvider {
	return &StubProvider{
		Fallback: "I'm running in offline mode right now.",
	}
}

func (m *StubProvider) Name() string {
	return "stub"
}

func (m *StubProvider) Generate(ctx context.Context, r Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, r)
	if m.GenerateErr != nil {
		return nil, m.GenerateErr
	}
	if len(m.Responses) == 0 {
		return &Response{Content: m.Fallback}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	embedErr := m.EmbedErr
	m.mu.Unlock()
	if embedErr != nil {
		return nil, embedErr
	}
	return HashEmbedding(text, StubDimensions), nil
}

// SetEmbedErr switches embedding failures on or off.
func (m *StubProvider) SetEmbedErr(err error) {
	m.mu.Lock()
	m.EmbedErr = err
	m.mu.Unlock()
}

// LastRequest returns the most recent Generate request.
func (m *StubProvider) LastRequest() (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Requests) == 0 {
		return Request{}, false
	}
	return m.Requests[len(m.Requests)-1], true
}

// HashEmbedding counts lower-cased words into dims buckets. Text with no
// words maps to a fixed non-zero vector.
func HashEmbedding(text string, dims int) []float32 {
	vec := make([]float32, dims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		vec[0] = 1
		return vec
	}
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dims)]++
	}
	return vec
}
