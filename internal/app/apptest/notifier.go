package apptest

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/tempvoice/internal/core"
	"github.com/dkeye/tempvoice/internal/domain"
)

type Sent[T any] struct {
	To  domain.UserID
	Msg T
}

// FakeNotifier records everything it is asked to deliver.
type FakeNotifier struct {
	mu       sync.Mutex
	prompts  []Sent[core.Prompt]
	outcomes []Sent[core.Outcome]
	directs  []Sent[string]

	FailPrompt  error
	FailOutcome error
}

func (n *FakeNotifier) Prompt(_ context.Context, to domain.UserID, p core.Prompt) error {
	if n.FailPrompt != nil {
		return core.PlatformFailure("prompt", n.FailPrompt)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.prompts = append(n.prompts, Sent[core.Prompt]{To: to, Msg: p})
	return nil
}

func (n *FakeNotifier) Outcome(_ context.Context, to domain.UserID, o core.Outcome) error {
	if n.FailOutcome != nil {
		return core.PlatformFailure("outcome", n.FailOutcome)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, Sent[core.Outcome]{To: to, Msg: o})
	return nil
}

func (n *FakeNotifier) Direct(_ context.Context, to domain.UserID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.directs = append(n.directs, Sent[string]{To: to, Msg: text})
}

func (n *FakeNotifier) Prompts() []Sent[core.Prompt] {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.prompts)
}

func (n *FakeNotifier) Outcomes() []Sent[core.Outcome] {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.outcomes)
}

func (n *FakeNotifier) Directs() []Sent[string] {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.directs)
}

// OutcomesFor filters recorded outcomes by recipient.
func (n *FakeNotifier) OutcomesFor(to domain.UserID) []core.Outcome {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []core.Outcome
	for _, o := range n.outcomes {
		if o.To == to {
			out = append(out, o.Msg)
		}
	}
	return out
}

var _ core.Notifier = (*FakeNotifier)(nil)
