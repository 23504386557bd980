package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"leaderboard-kinetics/internal/domain"
	"leaderboard-kinetics/internal/kinetics"
	"leaderboard-kinetics/internal/pubsub"
	"leaderboard-kinetics/internal/ranking"
	"leaderboard-kinetics/internal/storage"
	"leaderboard-kinetics/internal/streak"
)

// prepareBatch validates and sanitizes the batch and groups it by symbol.
func (e *Engine) prepareBatch(_ context.Context, rc *RunContext) error {
	fallback := e.kinetics.Fallback()

	rc.Present = make(map[string]struct{})
	rc.BySymbol = make(map[string]domain.HistorySeries)

	clean := make([]domain.Snapshot, 0, len(rc.Batch))
	for i, s := range rc.Batch {
		if err := storage.ValidateKey(rc.Tag, s.Symbol); err != nil {
			return fmt.Errorf("%w: snapshot %d: empty symbol", ErrInvalidBatch, i)
		}
		if s.TimestampMs < 0 {
			return fmt.Errorf("%w: snapshot %d (%s): negative timestamp %d", ErrInvalidBatch, i, s.Symbol, s.TimestampMs)
		}

		if !kinetics.IsFinite(s.PctChange) || !kinetics.IsFinite(s.Volume) {
			s.PctChange = kinetics.Sanitize(s.PctChange, fallback)
			s.Volume = kinetics.Sanitize(s.Volume, fallback)
			rc.Stats.Sanitized++
		}
		clean = append(clean, s)

		rc.Present[s.Symbol] = struct{}{}
		rc.BySymbol[s.Symbol] = append(rc.BySymbol[s.Symbol], s)
	}
	rc.Batch = clean

	rc.Symbols = make([]string, 0, len(rc.Present))
	for sym := range rc.Present {
		rc.Symbols = append(rc.Symbols, sym)
		series := rc.BySymbol[sym]
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].TimestampMs < series[j].TimestampMs
		})
	}
	sort.Strings(rc.Symbols)

	rc.Stats.Snapshots = len(rc.Batch)
	rc.Stats.Symbols = len(rc.Symbols)
	if rc.Stats.Sanitized > 0 {
		rc.log.Warn().Int("sanitized", rc.Stats.Sanitized).Msg("non-finite snapshot values replaced")
	}
	return nil
}

// persistHistory appends the batch to history, one goroutine per symbol,
// chunkSize symbols at a time. Append failures are counted, not fatal.
func (e *Engine) persistHistory(ctx context.Context, rc *RunContext) error {
	var (
		mu                           sync.Mutex
		appended, duplicates, failed int
	)

	for start := 0; start < len(rc.Symbols); start += e.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+e.chunkSize, len(rc.Symbols))

		var g errgroup.Group
		for _, sym := range rc.Symbols[start:end] {
			series := rc.BySymbol[sym]
			g.Go(func() error {
				var a, d, f int
				for _, s := range series {
					began := time.Now()
					ok, err := e.history.Append(ctx, rc.Tag, s)
					e.metrics.RecordStoreOp("history", "append", time.Since(began), err)
					switch {
					case err != nil:
						f++
						rc.log.Debug().Err(err).Str("symbol", sym).Int64("timestamp_ms", s.TimestampMs).Msg("history append failed")
					case ok:
						a++
					default:
						d++
					}
				}
				mu.Lock()
				appended += a
				duplicates += d
				failed += f
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	rc.Stats.Appended = appended
	rc.Stats.Duplicates = duplicates
	rc.Stats.AppendFailures = failed
	e.metrics.RecordBatch(len(rc.Batch), rc.Stats.Sanitized, failed)

	if failed > 0 {
		rc.log.Warn().
			Int("appended", appended).
			Int("duplicates", duplicates).
			Int("failed", failed).
			Msg("partial history persist failure")
	}
	return nil
}

// fetchHistory reads the history tail of every batch symbol and merges the
// batch into it, so a failed append or read still sees the batch points.
func (e *Engine) fetchHistory(ctx context.Context, rc *RunContext) error {
	tails := make([]domain.HistorySeries, len(rc.Symbols))
	errs := make([]error, len(rc.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.chunkSize)
	for i, sym := range rc.Symbols {
		g.Go(func() error {
			began := time.Now()
			tail, err := e.history.ReadTail(gctx, rc.Tag, sym, e.lookback)
			e.metrics.RecordStoreOp("history", "read_tail", time.Since(began), err)
			tails[i], errs[i] = tail, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	rc.History = make(map[string]domain.HistorySeries, len(rc.Symbols))
	for i, sym := range rc.Symbols {
		if errs[i] != nil {
			rc.Stats.FetchFailures++
			rc.log.Warn().Err(errs[i]).Str("symbol", sym).Msg("history read failed, using batch points only")
			tails[i] = nil
		}
		rc.History[sym] = domain.MergeSeries(tails[i], rc.BySymbol[sym], e.lookback)
	}
	return nil
}

// computeKinetics derives and normalizes the signals of every batch symbol.
func (e *Engine) computeKinetics(_ context.Context, rc *RunContext) error {
	rc.Enriched = make([]domain.EnrichedEntry, len(rc.Symbols))
	ptrs := make([]*domain.EnrichedEntry, len(rc.Symbols))

	for i, sym := range rc.Symbols {
		series := rc.History[sym]
		// The entry reflects the newest stored point, which a late backfill
		// or an in-batch duplicate never replaces.
		latest, _ := series.Latest()
		k, warming := e.kinetics.Compute(series, e.windows)
		rc.Enriched[i] = domain.EnrichedEntry{
			Snapshot:  latest,
			Kinetics:  k,
			WarmingUp: warming,
		}
		if warming {
			rc.Stats.WarmingUp++
		}
		ptrs[i] = &rc.Enriched[i]
	}

	return e.normalizer.NormalizeBatch(ptrs)
}

func (e *Engine) loadLeaderboard(ctx context.Context, rc *RunContext) error {
	began := time.Now()
	prev, err := e.leaderboards.Load(ctx, rc.Tag)
	e.metrics.RecordStoreOp("leaderboard", "load", time.Since(began), err)
	if err != nil {
		return fmt.Errorf("%w: load: %w", ErrStorageUnavailable, err)
	}
	rc.Previous = prev
	rc.Leaderboard = append([]domain.LeaderboardEntry(nil), prev...)
	return nil
}

// mergeStreaks loads the prior leaderboard and merges the batch into it.
func (e *Engine) mergeStreaks(ctx context.Context, rc *RunContext) error {
	if err := e.loadLeaderboard(ctx, rc); err != nil {
		return err
	}
	rc.Leaderboard = e.merger.Merge(rc.Previous, rc.Enriched)
	return nil
}

func (e *Engine) prune(_ context.Context, rc *RunContext) error {
	kept, removed := streak.Prune(rc.Leaderboard, e.retention, rc.NowMs)
	rc.Leaderboard = kept
	rc.Removed = removed
	rc.Stats.Pruned = len(removed)

	if rc.Mode == ModePrune {
		ranking.Renumber(rc.Leaderboard)
	}
	if len(removed) > 0 {
		rc.log.Info().Strs("symbols", removed).Msg("pruned inactive entries")
	}
	return nil
}

func (e *Engine) rank(_ context.Context, rc *RunContext) error {
	e.ranker.Rank(rc.Leaderboard, rc.Present)
	return nil
}

func (e *Engine) trim(_ context.Context, rc *RunContext) error {
	kept, dropped := ranking.Trim(rc.Leaderboard, e.maxLength)
	rc.Leaderboard = kept
	rc.Stats.Trimmed = dropped
	return nil
}

// persistLeaderboard replaces the stored leaderboard. A canceled run stops
// here so that no partial result is committed.
func (e *Engine) persistLeaderboard(ctx context.Context, rc *RunContext) error {
	if rc.Mode == ModePreview {
		rc.log.Debug().Msg("preview run, leaderboard not persisted")
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := domain.ValidateLeaderboard(rc.Leaderboard, e.maxLength); err != nil {
		return err
	}

	began := time.Now()
	err := e.leaderboards.Replace(ctx, rc.Tag, rc.Leaderboard)
	e.metrics.RecordStoreOp("leaderboard", "replace", time.Since(began), err)
	if err != nil {
		return fmt.Errorf("%w: replace: %w", ErrStorageUnavailable, err)
	}
	rc.Persisted = true
	return nil
}

// emitSummary logs the run summary and publishes it. Publishing never
// fails the run.
func (e *Engine) emitSummary(ctx context.Context, rc *RunContext) error {
	summary := buildSummary(rc, e.clock())

	warming := 0
	for _, entry := range rc.Leaderboard {
		if entry.WarmingUp {
			warming++
		}
	}
	if rc.Persisted {
		e.metrics.RecordLeaderboard(rc.Tag, len(rc.Leaderboard), warming, rc.Stats.Trimmed, rc.Stats.Pruned)
	}

	rc.log.Info().
		Int("snapshots", summary.Stats.Snapshots).
		Int("symbols", summary.Stats.Symbols).
		Int("entries", summary.Entries).
		Int("warming_up", summary.Stats.WarmingUp).
		Int("trimmed", summary.Stats.Trimmed).
		Int("pruned", summary.Stats.Pruned).
		Bool("persisted", summary.Persisted).
		Msg("run summary")

	if e.publisher == nil {
		return nil
	}

	data, err := json.Marshal(summary)
	if err == nil {
		err = e.publisher.Publish(ctx, pubsub.Subject(e.subjectPrefix, rc.Tag), data)
	}
	e.metrics.RecordPublish(err)
	if err != nil {
		rc.PublishFailed = true
		rc.log.Warn().Err(err).Msg("summary publish failed")
	}
	return nil
}
