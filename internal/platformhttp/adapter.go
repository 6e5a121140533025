// Package platformhttp is an example PlatformAdapter built on
// net/http. It is an external collaborator: the governance core
// depends only on transmit.PlatformAdapter, never on this package's
// internals, and the boundary guard's forbidden-import list keeps that
// direction one-way.
package platformhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/huntfabric/corehunt/pkg/contracts"
	"github.com/huntfabric/corehunt/pkg/transmit"
)

// payloadSchema validates the outbound platform payload shape before it is
// ever serialized onto the wire, mirroring transmit's own draft-shape
// validation but scoped to this adapter's specific platform API contract.
var payloadSchema = compilePayloadSchema()

func compilePayloadSchema() *jsonschema.Schema {
	const schemaDoc = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["title", "description", "severity"],
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"description": {"type": "string", "minLength": 1},
			"severity": {"type": "string", "minLength": 1}
		}
	}`
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://huntfabric.local/schema/platformhttp-payload.json"
	if err := c.AddResource(url, strings.NewReader(schemaDoc)); err != nil {
		panic(fmt.Sprintf("platformhttp: invalid embedded schema: %v", err))
	}
	compiled, err := c.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("platformhttp: schema compile failed: %v", err))
	}
	return compiled
}

// Adapter submits a DraftReport to a bounty platform's HTTP intake endpoint.
// It embeds transmit.RequestCountingAdapter so any second outbound call in
// the same Submit is a structural AdapterArchitecturalViolation, not a bug
// callers have to remember to avoid.
type Adapter struct {
	transmit.RequestCountingAdapter

	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter // client-side pacing only; not a core invariant
	apiKey     string
}

// New builds an Adapter for platform, posting to endpoint with apiKey bearer
// auth. requestsPerSecond/burst shape this adapter's own outbound pacing —
// the core's at-most-one-call-per-confirmation invariant is enforced
// independently by RequestCountingAdapter, regardless of this limiter.
func New(platform, endpoint, apiKey string, requestsPerSecond float64, burst int) *Adapter {
	return &Adapter{
		RequestCountingAdapter: transmit.NewRequestCountingAdapter(platform),
		endpoint:                endpoint,
		httpClient:              &http.Client{Timeout: 30 * time.Second},
		limiter:                 rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		apiKey:                  apiKey,
	}
}

// Submit posts draft to the platform's intake endpoint exactly once.
func (a *Adapter) Submit(ctx context.Context, draft contracts.DraftReport) (string, string, error) {
	a.BeginSubmit()

	if err := a.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("platformhttp: rate limiter wait: %w", err)
	}

	payload := map[string]any{
		"title":       draft.Title,
		"description": draft.Description,
		"severity":    draft.Severity,
	}
	if err := payloadSchema.Validate(payload); err != nil {
		return "", "", fmt.Errorf("platformhttp: payload failed schema validation: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("platformhttp: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("platformhttp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	if err := a.CheckAndIncrement(); err != nil {
		return "", "", err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("platformhttp: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("platformhttp: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("platformhttp: platform returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", string(respBody), nil
	}
	return decoded.ID, string(respBody), nil
}
