package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/helmsman/internal/agent"
	"github.com/aristath/helmsman/internal/agent/memory"
	"github.com/aristath/helmsman/internal/journal"
	"github.com/aristath/helmsman/internal/reliability"
)

// jobTimeout bounds each maintenance job run.
const jobTimeout = 5 * time.Minute

// SnapshotJob captures all agent memories and rotates old remote copies.
type SnapshotJob struct {
	Snapshots     *reliability.SnapshotService
	RetentionDays int
	Log           zerolog.Logger
}

func (j *SnapshotJob) Name() string { return "memory_snapshot" }

func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := j.Snapshots.CaptureAndStore(ctx); err != nil {
		return err
	}
	return j.Snapshots.RotateOld(ctx, j.RetentionDays)
}

// ObservationPruneJob trims each agent's observation log so unbounded
// daemon uptime does not grow memory without limit.
type ObservationPruneJob struct {
	Registry *agent.Registry
	Memories *memory.Store
	KeepFor  time.Duration
	Log      zerolog.Logger
}

func (j *ObservationPruneJob) Name() string { return "observation_prune" }

func (j *ObservationPruneJob) Run() error {
	cutoff := time.Now().UTC().Add(-j.KeepFor)

	total := 0
	for _, status := range j.Registry.List() {
		total += j.Memories.PruneObservationLog(status.Config.ID, cutoff)
	}
	if total > 0 {
		j.Log.Info().Int("pruned", total).Msg("Pruned old observations")
	}
	return nil
}

// JournalPruneJob deletes journal entries past the retention window.
type JournalPruneJob struct {
	Journal *journal.Journal
	KeepFor time.Duration
	Log     zerolog.Logger
}

func (j *JournalPruneJob) Name() string { return "journal_prune" }

func (j *JournalPruneJob) Run() error {
	pruned, err := j.Journal.Prune(time.Now().UTC().Add(-j.KeepFor))
	if err != nil {
		return err
	}
	if pruned > 0 {
		j.Log.Info().Int64("pruned", pruned).Msg("Pruned old journal entries")
	}
	return nil
}
