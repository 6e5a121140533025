package audit

import (
	"context"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestChainAppendProperty checks that the sequence of seqs is 0,1,2,… with
// no gaps and no resets across a randomized number of concurrent
// appenders.
func TestChainAppendProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("dense, gapless, strictly increasing seqs under concurrency", prop.ForAll(
		func(workerCount int) bool {
			chain := New(nil)
			var wg sync.WaitGroup
			for i := 0; i < workerCount; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := chain.Append(context.Background(), EventObservationRecorded, "property-worker", nil)
					if err != nil {
						panic(err)
					}
				}()
			}
			wg.Wait()

			entries := chain.Snapshot()
			if len(entries) != workerCount {
				return false
			}
			for i, e := range entries {
				if e.Seq != uint64(i) {
					return false
				}
			}
			return chain.Verify().OK
		},
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
