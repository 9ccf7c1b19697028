package reliability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/helmsman/internal/agent"
	"github.com/aristath/helmsman/internal/agent/memory"
	"github.com/aristath/helmsman/internal/events"
)

const (
	snapshotPrefix     = "helmsman-snapshot-"
	snapshotTimeFormat = "2006-01-02-150405"
	minSnapshotsToKeep = 3
)

// Uploader is the slice of ObjectStore the snapshot service needs.
// Nil disables remote upload; local snapshots are still written.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// SnapshotInfo describes one remote snapshot.
type SnapshotInfo struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// bundle is the on-disk and on-wire snapshot format: every agent's
// msgpack-encoded memory keyed by agent id.
type bundle struct {
	CreatedAt time.Time         `msgpack:"created_at"`
	Memories  map[string][]byte `msgpack:"memories"`
}

// SnapshotService periodically captures every agent's memory, writes it
// locally and optionally uploads it to object storage.
type SnapshotService struct {
	registry *agent.Registry
	memories *memory.Store
	store    Uploader
	eventMgr *events.Manager
	dataDir  string
	log      zerolog.Logger
}

// NewSnapshotService creates a snapshot service. store may be nil.
func NewSnapshotService(
	registry *agent.Registry,
	memories *memory.Store,
	store Uploader,
	eventMgr *events.Manager,
	dataDir string,
	log zerolog.Logger,
) *SnapshotService {
	return &SnapshotService{
		registry: registry,
		memories: memories,
		store:    store,
		eventMgr: eventMgr,
		dataDir:  dataDir,
		log:      log.With().Str("service", "snapshots").Logger(),
	}
}

// CaptureAndStore snapshots every registered agent's memory, writes the
// bundle under dataDir/snapshots and uploads it when a store is
// configured. Agents without memory are skipped, not fatal.
func (s *SnapshotService) CaptureAndStore(ctx context.Context) error {
	start := time.Now()

	b := bundle{
		CreatedAt: start.UTC(),
		Memories:  make(map[string][]byte),
	}

	for _, status := range s.registry.List() {
		data, err := s.memories.EncodeSnapshot(status.Config.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("agent_id", status.Config.ID).Msg("Skipping agent without memory")
			continue
		}
		b.Memories[status.Config.ID] = data
	}

	if len(b.Memories) == 0 {
		s.log.Debug().Msg("No agent memories to snapshot")
		return nil
	}

	encoded, err := msgpack.Marshal(b)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot bundle: %w", err)
	}

	name := snapshotPrefix + start.UTC().Format(snapshotTimeFormat) + ".msgpack"
	localPath, err := s.writeLocal(name, encoded)
	if err != nil {
		return err
	}

	remote := false
	if s.store != nil {
		if err := s.store.Upload(ctx, name, encoded); err != nil {
			return fmt.Errorf("failed to upload snapshot: %w", err)
		}
		remote = true
	}

	if s.eventMgr != nil {
		s.eventMgr.EmitTyped("snapshots", &events.SnapshotSavedData{
			Path:   localPath,
			Remote: remote,
			Bytes:  len(encoded),
		})
	}

	s.log.Info().
		Int("agents", len(b.Memories)).
		Int("bytes", len(encoded)).
		Bool("remote", remote).
		Dur("duration_ms", time.Since(start)).
		Msg("Memory snapshot saved")

	return nil
}

// RestoreLatest downloads the newest remote snapshot and loads every
// agent memory it contains. Agents unknown to the registry are skipped.
func (s *SnapshotService) RestoreLatest(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, fmt.Errorf("no object store configured")
	}

	snapshots, err := s.ListSnapshots(ctx)
	if err != nil {
		return 0, err
	}
	if len(snapshots) == 0 {
		return 0, fmt.Errorf("no snapshots found")
	}

	data, err := s.store.Download(ctx, snapshots[0].Key)
	if err != nil {
		return 0, err
	}

	var b bundle
	if err := msgpack.Unmarshal(data, &b); err != nil {
		return 0, fmt.Errorf("failed to decode snapshot bundle: %w", err)
	}

	restored := 0
	for agentID, encoded := range b.Memories {
		if _, err := s.registry.Config(agentID); err != nil {
			s.log.Warn().Str("agent_id", agentID).Msg("Snapshot references unknown agent, skipping")
			continue
		}
		if err := s.memories.RestoreSnapshot(encoded); err != nil {
			s.log.Error().Err(err).Str("agent_id", agentID).Msg("Failed to restore agent memory")
			continue
		}
		restored++
	}

	s.log.Info().Int("restored", restored).Str("key", snapshots[0].Key).Msg("Memory snapshot restored")
	return restored, nil
}

// ListSnapshots lists remote snapshots, newest first.
func (s *SnapshotService) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	if s.store == nil {
		return nil, fmt.Errorf("no object store configured")
	}

	objects, err := s.store.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	snapshots := make([]SnapshotInfo, 0, len(objects))
	for _, obj := range objects {
		ts, ok := parseSnapshotKey(obj.Key)
		if !ok {
			continue
		}
		snapshots = append(snapshots, SnapshotInfo{
			Key:       obj.Key,
			Timestamp: ts,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(ts).Hours()),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}

// RotateOld deletes remote snapshots older than retentionDays, always
// keeping the newest three. retentionDays 0 keeps everything.
func (s *SnapshotService) RotateOld(ctx context.Context, retentionDays int) error {
	if s.store == nil || retentionDays <= 0 {
		return nil
	}

	snapshots, err := s.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(snapshots) <= minSnapshotsToKeep {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, snap := range snapshots {
		if i < minSnapshotsToKeep || !snap.Timestamp.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, snap.Key); err != nil {
			s.log.Error().Err(err).Str("key", snap.Key).Msg("Failed to delete old snapshot")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("Snapshot rotation completed")
	}
	return nil
}

func (s *SnapshotService) writeLocal(name string, data []byte) (string, error) {
	dir := filepath.Join(s.dataDir, "snapshots")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

func parseSnapshotKey(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, snapshotPrefix) || !strings.HasSuffix(key, ".msgpack") {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, snapshotPrefix), ".msgpack")
	ts, err := time.Parse(snapshotTimeFormat, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
