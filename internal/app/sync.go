package app

import (
	"context"
	"io"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/weft/internal/domain"
)

// defaultSyncInterval is used for the scheduled batch job when the caller
// does not configure one.
const defaultSyncInterval = time.Minute

// Syncer keeps denormalized display values on source records consistent
// with their target's display field. It never raises past its boundary:
// synchronization errors are logged and retried on a later pass, never
// propagated as failures of the caller's primary write.
type Syncer struct {
	repo     Repository
	records  RecordReader
	writer   RecordWriter
	defs     map[string]domain.RelationshipDefinition
	interval time.Duration
	logger   *charmLog.Logger
}

// NewSyncer constructs a sync engine over the relationship store and the
// entity-record contracts.
func NewSyncer(repo Repository, records RecordReader, writer RecordWriter, defs []domain.RelationshipDefinition, interval time.Duration, logger *charmLog.Logger) (*Syncer, error) {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if logger == nil {
		logger = charmLog.New(io.Discard)
	}
	byName := make(map[string]domain.RelationshipDefinition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		byName[strings.ToLower(def.Name)] = def
	}
	return &Syncer{
		repo:     repo,
		records:  records,
		writer:   writer,
		defs:     byName,
		interval: interval,
		logger:   logger,
	}, nil
}

// Sync refreshes one relationship's display value and reports whether a
// write happened. Idempotent and safe to call redundantly.
func (s *Syncer) Sync(ctx context.Context, rel domain.Relationship) bool {
	if !rel.Active() {
		return false
	}
	def, ok := s.defs[rel.Name]
	if !ok {
		return false
	}
	want, err := s.records.CurrentDisplayValue(ctx, rel.TargetType, rel.TargetID)
	if err != nil {
		s.logger.Warn("read target display value failed", "rel_id", rel.ID, "target", rel.TargetType+"/"+rel.TargetID, "err", err)
		return false
	}
	have, err := s.records.ReadField(ctx, rel.SourceType, rel.SourceID, def.DisplayKey)
	if err != nil {
		s.logger.Warn("read source display value failed", "rel_id", rel.ID, "source", rel.SourceType+"/"+rel.SourceID, "err", err)
		return false
	}
	if have == want {
		return false
	}
	if err := s.writer.WriteField(ctx, rel.SourceType, rel.SourceID, def.DisplayKey, want); err != nil {
		s.logger.Warn("write display value failed", "rel_id", rel.ID, "source", rel.SourceType+"/"+rel.SourceID, "key", def.DisplayKey, "err", err)
		return false
	}
	s.logger.Debug("display value refreshed", "rel_id", rel.ID, "key", def.DisplayKey)
	return true
}

// Refresh is Sync for callers that do not care whether a write happened.
func (s *Syncer) Refresh(ctx context.Context, rel domain.Relationship) {
	s.Sync(ctx, rel)
}

// OnTargetChanged is the eager path: immediately after a target record's
// display field changes, every active eager relationship pointing at it is
// refreshed within the same logical operation.
func (s *Syncer) OnTargetChanged(ctx context.Context, targetType, targetID string) {
	rels, err := s.repo.ListRelationshipsByTarget(ctx, targetType, targetID, "", true)
	if err != nil {
		s.logger.Warn("list relationships by target failed", "target", targetType+"/"+targetID, "err", err)
		return
	}
	for _, rel := range rels {
		def, ok := s.defs[rel.Name]
		if !ok || def.Strategy != domain.SyncEager {
			continue
		}
		s.Sync(ctx, rel)
	}
}

// ReadThrough is the lazy path: the display value is checked for staleness
// and refreshed at read time, then returned.
func (s *Syncer) ReadThrough(ctx context.Context, sourceType, sourceID, name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	def, ok := s.defs[name]
	if !ok {
		return "", ErrNotFound
	}
	if def.Strategy == domain.SyncLazy {
		rels, err := s.repo.ListRelationshipsBySource(ctx, sourceType, sourceID, name, true)
		if err != nil {
			return "", err
		}
		for _, rel := range rels {
			s.Sync(ctx, rel)
		}
	}
	return s.records.ReadField(ctx, sourceType, sourceID, def.DisplayKey)
}

// Run loops the scheduled batch pass on the configured interval until the
// context is canceled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduled sync loop started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduled sync loop stopped")
			return
		case <-ticker.C:
			s.ScanScheduled(ctx)
		}
	}
}

// ScanScheduled walks every active relationship whose definition is
// scheduled and refreshes display values in bulk. The staleness window is
// bounded by the job interval. Cancellation is checked between items.
func (s *Syncer) ScanScheduled(ctx context.Context) {
	for name, def := range s.defs {
		if def.Strategy != domain.SyncScheduled {
			continue
		}
		rels, err := s.repo.ListRelationshipsByName(ctx, name, true)
		if err != nil {
			s.logger.Warn("list scheduled relationships failed", "name", name, "err", err)
			continue
		}
		refreshed := 0
		for _, rel := range rels {
			if ctx.Err() != nil {
				return
			}
			if s.Sync(ctx, rel) {
				refreshed++
			}
		}
		if refreshed > 0 {
			s.logger.Info("scheduled sync pass complete", "name", name, "relationships", len(rels), "refreshed", refreshed)
		}
	}
}
