// Package approvaltest provides test doubles for the approval package.
package approvaltest

import (
	"context"
	"sync"

	"github.com/flemzord/deskclaw/internal/approval"
)

// Prompter records every prompt it is asked to show.
//
// When Gate is set, the prompt is answered immediately with Decision
// (for example approval.Approve()). When Err is set, delivery fails.
// With neither, the request stays pending until the test resolves it.
type Prompter struct {
	Gate     *approval.Gate
	Decision approval.Decision
	Err      error

	mu      sync.Mutex
	prompts []approval.Prompt
	sent    chan approval.Prompt
}

// SendApprovalPrompt implements approval.Prompter.
func (p *Prompter) SendApprovalPrompt(_ context.Context, prompt approval.Prompt) error {
	p.mu.Lock()
	p.prompts = append(p.prompts, prompt)
	sent := p.sent
	p.mu.Unlock()

	if sent != nil {
		sent <- prompt
	}
	if p.Err != nil {
		return p.Err
	}
	if p.Gate != nil {
		p.Gate.Resolve(prompt.ID, p.Decision)
	}
	return nil
}

// Prompts returns a snapshot of the prompts sent so far.
func (p *Prompter) Prompts() []approval.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]approval.Prompt(nil), p.prompts...)
}

// Sent returns a channel that receives each prompt as it is sent. It must
// be called before the first prompt and drained by the test.
func (p *Prompter) Sent() <-chan approval.Prompt {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(chan approval.Prompt, 16)
	}
	return p.sent
}

// Interface guard.
var _ approval.Prompter = (*Prompter)(nil)
