package suggest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quillfin/quill/internal/model"
)

// ErrSuggestionNotFound is returned when accepting or rejecting an unknown
// suggestion ID.
var ErrSuggestionNotFound = fmt.Errorf("suggestion not found")

// Pool holds the current session's suggestions. Suggestions live only in
// memory; accepting one materializes a Rule and rejecting one discards it.
type Pool struct {
	suggestions map[string]model.RuleSuggestion
	order       []string
	mu          sync.Mutex
}

// NewPool creates an empty suggestion pool.
func NewPool() *Pool {
	return &Pool{suggestions: make(map[string]model.RuleSuggestion)}
}

// Refresh replaces the pool contents with a fresh mining result.
func (p *Pool) Refresh(suggestions []model.RuleSuggestion) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.suggestions = make(map[string]model.RuleSuggestion, len(suggestions))
	p.order = p.order[:0]
	for _, s := range suggestions {
		p.suggestions[s.ID] = s
		p.order = append(p.order, s.ID)
	}
}

// List returns the pooled suggestions in ranked order.
func (p *Pool) List() []model.RuleSuggestion {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.RuleSuggestion, 0, len(p.order))
	for _, id := range p.order {
		if s, ok := p.suggestions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Accept materializes the suggestion as a Rule with its confidence preserved
// and removes it from the pool.
func (p *Pool) Accept(id string) (*model.Rule, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.suggestions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}
	delete(p.suggestions, id)

	rule := &model.Rule{
		ID:          uuid.NewString(),
		Name:        s.Reason,
		Conditions:  s.Conditions,
		Action:      s.Action,
		Source:      model.RuleSourceSuggestion,
		Confidence:  model.ClampConfidence(s.Confidence),
		IsActive:    true,
		CreatedDate: time.Now(),
	}
	return rule, nil
}

// Reject discards the suggestion.
func (p *Pool) Reject(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.suggestions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSuggestionNotFound, id)
	}
	delete(p.suggestions, id)
	return nil
}
