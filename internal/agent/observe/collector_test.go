package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource returns canned observations and can be made slow or failing
// per category.
type fakeSource struct {
	delay   map[domain.ObservationCategory]time.Duration
	fail    map[domain.ObservationCategory]bool
	calls   int
}

func (f *fakeSource) Observe(ctx context.Context, agentID string, category domain.ObservationCategory) (domain.Observation, error) {
	f.calls++
	if d, ok := f.delay[category]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return domain.Observation{}, ctx.Err()
		}
	}
	if f.fail[category] {
		return domain.Observation{}, errors.New("source unavailable")
	}
	return domain.Observation{
		Timestamp:     time.Now().UTC(),
		Category:      category,
		Significance:  60,
		Actionability: 40,
	}, nil
}

func TestCollector_CollectsFullBattery(t *testing.T) {
	src := &fakeSource{}
	c := NewCollector(src, time.Second, zerolog.Nop())

	obs := c.Collect(context.Background(), "a-1")

	require.Len(t, obs, len(domain.AllObservationCategories))
	seen := map[domain.ObservationCategory]bool{}
	for _, o := range obs {
		seen[o.Category] = true
	}
	for _, cat := range domain.AllObservationCategories {
		assert.True(t, seen[cat], "missing category %s", cat)
	}
}

func TestCollector_TimeoutYieldsEmptyObservation(t *testing.T) {
	src := &fakeSource{
		delay: map[domain.ObservationCategory]time.Duration{
			domain.ObserveSentiment: 500 * time.Millisecond,
		},
	}
	c := NewCollector(src, 50*time.Millisecond, zerolog.Nop())

	obs := c.Collect(context.Background(), "a-1")

	require.Len(t, obs, len(domain.AllObservationCategories))
	for _, o := range obs {
		if o.Category == domain.ObserveSentiment {
			assert.Zero(t, o.Significance)
			assert.True(t, o.Payload.Empty())
		} else {
			assert.Equal(t, 60.0, o.Significance)
		}
	}
}

func TestCollector_ErrorYieldsEmptyObservation(t *testing.T) {
	src := &fakeSource{
		fail: map[domain.ObservationCategory]bool{domain.ObserveCorrelation: true},
	}
	c := NewCollector(src, time.Second, zerolog.Nop())

	obs := c.Collect(context.Background(), "a-1")

	require.Len(t, obs, len(domain.AllObservationCategories))
	for _, o := range obs {
		if o.Category == domain.ObserveCorrelation {
			assert.Zero(t, o.Significance)
		}
	}
}
