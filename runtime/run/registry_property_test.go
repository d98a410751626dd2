package run

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSequenceProperties verifies that for any publish count, a subscriber
// with sufficient queue capacity observes sequence numbers 1..N with no gaps
// and no duplicates.
func TestSequenceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("delivery is gap-free and ordered", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()
			reg := NewRegistry(ctx)
			sub := reg.Subscribe(ctx, "r1", WithQueueCapacity(n+1))
			defer sub.Close()

			for i := 0; i < n; i++ {
				reg.Publish(ctx, "r1", "tick", nil)
			}
			for want := 1; want <= n; want++ {
				ev := <-sub.Events()
				if ev.Seq != want {
					return false
				}
			}
			select {
			case <-sub.Events():
				return false
			default:
				return true
			}
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}
