package transmit

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/huntfabric/corehunt/pkg/contracts"
)

// PlatformAdapter is the trait every bounty-platform collaborator
// implements. Adapters are never
// mutated after registration.
type PlatformAdapter interface {
	Platform() string
	Submit(ctx context.Context, draft contracts.DraftReport) (platformSubmissionID string, response string, err error)
}

// AdapterArchitecturalViolation is raised when an adapter's submit
// implementation attempts more than one outbound request per Submit call —
// "exactly one network call" is a structural guarantee, not a convention.
type AdapterArchitecturalViolation struct {
	Platform string
}

func (e *AdapterArchitecturalViolation) Error() string {
	return fmt.Sprintf("transmit: adapter %q attempted more than one request per submit", e.Platform)
}

func (e *AdapterArchitecturalViolation) HardStop() bool { return true }

// RequestCountingAdapter is the inherited base every concrete PlatformAdapter
// embeds. It self-polices request_count <= 1 per Submit invocation; the
// counter resets at the start of every Submit call via BeginSubmit.
type RequestCountingAdapter struct {
	platform     string
	requestCount int64
}

// NewRequestCountingAdapter seeds the base with the adapter's platform id.
func NewRequestCountingAdapter(platform string) RequestCountingAdapter {
	return RequestCountingAdapter{platform: platform}
}

// Platform returns the adapter's platform id.
func (a *RequestCountingAdapter) Platform() string { return a.platform }

// BeginSubmit resets the per-call request counter. Concrete adapters call
// this once at the top of their own Submit implementation.
func (a *RequestCountingAdapter) BeginSubmit() {
	atomic.StoreInt64(&a.requestCount, 0)
}

// CheckAndIncrement must be called immediately before every outbound
// request a concrete adapter makes. It raises AdapterArchitecturalViolation
// the instant a second request is attempted within the same Submit call.
func (a *RequestCountingAdapter) CheckAndIncrement() error {
	n := atomic.AddInt64(&a.requestCount, 1)
	if n > 1 {
		return &AdapterArchitecturalViolation{Platform: a.platform}
	}
	return nil
}

// RequestCount reports the current call's request count, for tests.
func (a *RequestCountingAdapter) RequestCount() int64 {
	return atomic.LoadInt64(&a.requestCount)
}
