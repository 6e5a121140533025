// Package toolprobe is an example read-only HTTP probe ToolOutput producer:
// an external collaborator the exploration orchestrator can
// wire in as a ToolRunner. It never writes, never classifies, and only
// returns raw headers/body snippets as untrusted signals — the Truth Engine
// decides what they mean.
package toolprobe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

const maxBodySnippet = 4096

// Probe performs a single read-only HTTP request per hypothesis test
// action and packages the result as an Observation with untrusted
// ToolOutputs. It never mutates remote state on its own — an action whose
// ActionType is anything other than ActionHTTP is refused rather than
// silently downgraded.
type Probe struct {
	client  *http.Client
	timeout time.Duration
}

// New builds a Probe with a hard per-request timeout.
func New(timeout time.Duration) *Probe {
	return &Probe{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// ErrUnsupportedAction is returned when asked to run anything but an HTTP
// action; toolprobe has no business attempting state mutation or auth
// flows.
var ErrUnsupportedAction = fmt.Errorf("toolprobe: only ActionHTTP is supported")

// Run performs the HTTP action and returns an Observation. The before/after
// state captured here is limited to what a GET/HEAD probe can observe
// without mutating anything: status code and header presence.
func (p *Probe) Run(ctx context.Context, hyp contracts.Hypothesis, action contracts.Action) (contracts.Observation, error) {
	if action.Type != contracts.ActionHTTP {
		return contracts.Observation{}, ErrUnsupportedAction
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, action.Target, nil)
	if err != nil {
		return contracts.Observation{}, fmt.Errorf("toolprobe: build request: %w", err)
	}

	before := map[string]any{"target": action.Target}

	resp, err := p.client.Do(req)
	if err != nil {
		return contracts.Observation{}, fmt.Errorf("toolprobe: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySnippet))

	after := map[string]any{
		"status_code":    resp.StatusCode,
		"content_type":   resp.Header.Get("Content-Type"),
		"content_length": resp.ContentLength,
	}

	obs := contracts.Observation{
		ID:           uuid.New().String(),
		HypothesisID: hyp.ID,
		BeforeState:  before,
		Action:       action,
		AfterState:   after,
		ToolOutputs: []contracts.ToolOutput{
			{Tool: "toolprobe", Output: string(body), Trusted: false},
		},
		Timestamp: time.Now().UTC(),
	}
	return obs, nil
}
