package testutil

import (
	"context"
	"sync"

	"storyfeed/internal/model"
)

// StubModerator returns a fixed verdict or error and records the texts it saw.
type StubModerator struct {
	mu     sync.Mutex
	Result *model.ModerationResult
	Err    error
	texts  []string
}

// Moderate returns Err if set, otherwise Result (safe when nil).
func (m *StubModerator) Moderate(ctx context.Context, text string) (*model.ModerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result == nil {
		return &model.ModerationResult{Safe: true}, nil
	}
	return m.Result, nil
}

// Texts returns every text passed to Moderate, in order.
func (m *StubModerator) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
