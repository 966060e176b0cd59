package studio

import (
	"context"
	"sync"
)

// Transcript is the ordered message list of the active conversation plus its
// accumulated cost.
type Transcript struct {
	mu       sync.Mutex
	messages []Message
	cost     SessionCost
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// Append adds a message unless one with the same id is already present.
func (t *Transcript) Append(m Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m.ID != "" {
		for _, existing := range t.messages {
			if existing.ID == m.ID {
				return false
			}
		}
	}
	t.messages = append(t.messages, m.clone())
	return true
}

// Messages returns a copy safe to render from another goroutine.
func (t *Transcript) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.clone()
	}
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Reset replaces the transcript with a fetched history.
func (t *Transcript) Reset(history []Message, cost *SessionCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = make([]Message, len(history))
	for i, m := range history {
		t.messages[i] = m.clone()
	}
	t.cost = SessionCost{}
	if cost != nil {
		t.cost = *cost
	}
}

func (t *Transcript) Cost() SessionCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cost
}

// Accumulate folds a response's cost into the session total. A backend
// session total is adopted unless it would move the totals backwards.
func (t *Transcript) Accumulate(session *SessionCost, cost *Cost, usage *TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if session != nil && session.TotalCost >= t.cost.TotalCost && session.TotalTokens >= t.cost.TotalTokens {
		t.cost = *session
		return
	}
	if cost != nil {
		t.cost.TotalCost += cost.TotalCost
		if t.cost.Currency == "" {
			t.cost.Currency = cost.Currency
		}
	}
	if usage != nil {
		t.cost.TotalTokens += usage.TotalTokens
	}
}

// FindAsset looks an embedded asset up by id.
func (t *Transcript) FindAsset(id string) (Asset, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.messages {
		for _, a := range m.Assets {
			if a.ID == id {
				return a, true
			}
		}
	}
	return Asset{}, false
}

// ApplyAsset runs fn on every embedded copy of the asset.
func (t *Transcript) ApplyAsset(id string, fn func(*Asset)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	found := false
	for i := range t.messages {
		for j := range t.messages[i].Assets {
			if t.messages[i].Assets[j].ID == id {
				fn(&t.messages[i].Assets[j])
				found = true
			}
		}
	}
	return found
}

// RemoveAsset drops every embedded copy of the asset.
func (t *Transcript) RemoveAsset(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	found := false
	for i := range t.messages {
		kept := t.messages[i].Assets[:0]
		for _, a := range t.messages[i].Assets {
			if a.ID == id {
				found = true
				continue
			}
			kept = append(kept, a)
		}
		t.messages[i].Assets = kept
	}
	return found
}

// transcriptView adapts the transcript to AssetView; refresh reloads the
// active conversation.
type transcriptView struct {
	t      *Transcript
	reload func(ctx context.Context) error
}

func (v transcriptView) FindAsset(id string) (Asset, bool) { return v.t.FindAsset(id) }
func (v transcriptView) ApplyAsset(id string, fn func(*Asset)) bool { return v.t.ApplyAsset(id, fn) }
func (v transcriptView) RemoveAsset(id string) bool { return v.t.RemoveAsset(id) }
func (v transcriptView) Refresh(ctx context.Context) error { return v.reload(ctx) }
