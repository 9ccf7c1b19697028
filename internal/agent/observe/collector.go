// Package observe gathers the per-cycle battery of environment readings.
package observe

import (
	"context"
	"time"

	"github.com/aristath/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

// Collector pulls one observation per category from the observation source.
// A slow or failing source never fails the cycle: the category is recorded
// as an empty low-significance observation instead.
type Collector struct {
	source  domain.ObservationSource
	timeout time.Duration
	log     zerolog.Logger
}

// NewCollector creates a new observation collector
func NewCollector(source domain.ObservationSource, timeout time.Duration, log zerolog.Logger) *Collector {
	return &Collector{
		source:  source,
		timeout: timeout,
		log:     log.With().Str("component", "observation_collector").Logger(),
	}
}

// Collect gathers the fixed battery of observation categories.
func (c *Collector) Collect(ctx context.Context, agentID string) []domain.Observation {
	observations := make([]domain.Observation, 0, len(domain.AllObservationCategories))

	for _, category := range domain.AllObservationCategories {
		observations = append(observations, c.collectOne(ctx, agentID, category))
	}

	return observations
}

func (c *Collector) collectOne(ctx context.Context, agentID string, category domain.ObservationCategory) domain.Observation {
	obsCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		obs domain.Observation
		err error
	}
	done := make(chan result, 1)

	go func() {
		obs, err := c.source.Observe(obsCtx, agentID, category)
		done <- result{obs, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			c.log.Warn().
				Err(r.err).
				Str("agent", agentID).
				Str("category", string(category)).
				Msg("Observation failed, recording empty observation")
			return domain.EmptyObservation(category)
		}
		if r.obs.Category == "" {
			r.obs.Category = category
		}
		if r.obs.Timestamp.IsZero() {
			r.obs.Timestamp = time.Now().UTC()
		}
		return r.obs
	case <-obsCtx.Done():
		c.log.Warn().
			Str("agent", agentID).
			Str("category", string(category)).
			Dur("timeout", c.timeout).
			Msg("Observation timed out, recording empty observation")
		return domain.EmptyObservation(category)
	}
}
