package circuit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step is one primary call result fed to the breaker: 'f' for a failure, 's' for a success.
type step struct {
	outcome     byte
	useFallback bool
	opened      bool
	closed      bool
}

func run(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	for i, st := range steps {
		switch st.outcome {
		case 'f':
			useFallback, change := b.RecordFailure()
			assert.Equal(t, st.useFallback, useFallback, "step %d fallback", i)
			assert.Equal(t, st.opened, change.Opened, "step %d opened", i)
		case 's':
			usePrimary, change := b.RecordSuccess()
			assert.Equal(t, !st.useFallback, usePrimary, "step %d primary", i)
			assert.Equal(t, st.closed, change.Closed, "step %d closed", i)
		default:
			require.FailNow(t, "unknown outcome", "step %d", i)
		}
	}
}

func TestBreakerSequences(t *testing.T) {
	tests := []struct {
		name      string
		opts      []Option
		steps     []step
		wantState State
	}{
		{
			name: "redis outage opens after the threshold",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{outcome: 'f'},
				{outcome: 'f'},
				{outcome: 'f', useFallback: true, opened: true},
				{outcome: 'f', useFallback: true},
			},
			wantState: StateOpen,
		},
		{
			name: "a success between failures restarts the count",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{outcome: 'f'},
				{outcome: 's'},
				{outcome: 'f'},
			},
			wantState: StateClosed,
		},
		{
			name: "recovery needs consecutive successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{outcome: 'f', useFallback: true, opened: true},
				{outcome: 's', useFallback: true},
				{outcome: 'f', useFallback: true},
				{outcome: 's', useFallback: true},
				{outcome: 's', closed: true},
			},
			wantState: StateClosed,
		},
		{
			name:      "non-positive thresholds keep the defaults",
			opts:      []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			steps:     []step{{outcome: 'f'}, {outcome: 'f'}, {outcome: 'f'}, {outcome: 'f'}},
			wantState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("idempotency-redis", tt.opts...)
			run(t, b, tt.steps)
			assert.Equal(t, tt.wantState, b.State())
		})
	}
}

func TestBreakerReportsOneOpeningUnderConcurrency(t *testing.T) {
	b := New("idempotency-redis", WithFailureThreshold(5))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		opened int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, change := b.RecordFailure(); change.Opened {
				mu.Lock()
				opened++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.True(t, b.IsOpen())
	assert.Equal(t, "open", b.State().String())
	assert.Equal(t, "idempotency-redis", b.Name())
}
