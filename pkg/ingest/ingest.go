// Package ingest drives the fetch-and-persist pipeline over the full verse
// key space: N concurrent fetchers feed a single transactional writer, one
// bad unit never aborts the run, and a finished run reports every failure
// for the operator to re-run (upserts make re-running safe).
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aelbannan/quranstore/pkg/db"
	"github.com/aelbannan/quranstore/pkg/fetch"
)

// FetchPoolInterface abstracts the worker pool so tests can inject failing
// implementations.
type FetchPoolInterface interface {
	Start(ctx context.Context)
	Submit(ctx context.Context, job Job) error
	Close()
}

// KindConstraint marks a unit whose record references a Sura/Juz/Hezb/Page
// row the seed store does not hold. Not retryable: the precondition is a
// seeding defect, not a transient condition.
const KindConstraint = "constraint"

// UnitFailure is one failed verse with the reason it failed.
type UnitFailure struct {
	Key      fetch.VerseKey
	Kind     string
	Attempts int
	Reason   string
}

// Report summarizes a run. Failed lists every skipped-over failure in key
// order; operators re-run with the same key space to fill them in.
type Report struct {
	RunID     uuid.UUID
	Started   time.Time
	Elapsed   time.Duration
	Total     int
	Succeeded int
	Skipped   int
	Failed    []UnitFailure
}

// Ingester orchestrates one ingestion run.
type Ingester struct {
	DB      *sql.DB
	Fetcher *fetch.VerseFetcher

	Workers   int
	BatchSize int
	// ForceRefresh re-fetches every unit; the default fill-missing-only
	// mode skips verses already complete in the store.
	ForceRefresh bool

	Logger     *slog.Logger
	OnProgress func(done, total int)

	// PoolFactory allows tests to inject custom pool implementations.
	PoolFactory func(workers, queue int) FetchPoolInterface
}

// NewIngester creates an Ingester with the default concurrency settings.
func NewIngester(conn *sql.DB, f *fetch.VerseFetcher) *Ingester {
	return &Ingester{DB: conn, Fetcher: f, Workers: 4, BatchSize: 50}
}

// fetchResult carries one unit's outcome from a fetcher to the consumer.
type fetchResult struct {
	idx  int
	key  fetch.VerseKey
	rec  *fetch.VerseRecord
	fail *fetch.Failure
}

type workUnit struct {
	idx int
	key fetch.VerseKey
}

// Run iterates keys exactly once in the given (ascending) order, fetching
// and upserting each verse. It aborts only on ctx cancellation or a fatal
// precondition (unseeded store); per-unit failures are recorded in the
// Report and the run continues.
func (ig *Ingester) Run(ctx context.Context, keys []fetch.VerseKey) (*Report, error) {
	report := &Report{RunID: uuid.New(), Started: time.Now(), Total: len(keys)}
	defer func() { report.Elapsed = time.Since(report.Started) }()

	suras, juzs, hezbs, pages, err := db.SeededIDs(ig.DB)
	if err != nil {
		return report, err
	}
	if len(suras) == 0 || len(juzs) == 0 || len(hezbs) == 0 || len(pages) == 0 {
		return report, fmt.Errorf("store not seeded: Suras/Juzs/Hezbs/Pages must be populated before ingestion")
	}

	// Resume: drop keys that are already complete unless forced.
	var complete map[[2]int]bool
	if !ig.ForceRefresh {
		complete, err = db.CompleteAyatKeys(ig.DB)
		if err != nil {
			return report, fmt.Errorf("load resume state: %w", err)
		}
	}
	var work []workUnit
	for _, k := range keys {
		if complete[[2]int{k.Sura, k.Ayah}] {
			report.Skipped++
			continue
		}
		work = append(work, workUnit{idx: len(work), key: k})
	}
	if ig.Logger != nil && report.Skipped > 0 {
		ig.Logger.Info("resuming ingestion", "skipped", report.Skipped, "remaining", len(work))
	}
	if len(work) == 0 {
		return report, nil
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var pool FetchPoolInterface
	if ig.PoolFactory != nil {
		pool = ig.PoolFactory(workers, workers*2)
	} else {
		pool = NewFetchPool(workers, workers*2)
	}

	bw := NewBatchWriter(ig.DB, ig.BatchSize, 100*time.Millisecond)
	resultCh := make(chan fetchResult, workers*2)
	doneCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(ctx)

	// Consumer: the sole failure aggregator. Results are reassembled into
	// ascending key order so writes land in canonical reading order.
	go func() {
		defer close(doneCh)
		buffer := make(map[int]fetchResult)
		nextIdx := 0
		processed := 0

		handle := func(res fetchResult) error {
			processed++
			if res.fail != nil {
				ig.recordFailure(report, res.key, string(res.fail.Kind), res.fail.Attempts, res.fail.Err)
				return nil
			}
			if msg := missingParent(res.rec, suras, juzs, hezbs, pages); msg != "" {
				ig.recordFailure(report, res.key, KindConstraint, 1, errors.New(msg))
				return nil
			}
			rec := res.rec
			if err := bw.Submit(func(_ context.Context, tx *sql.Tx) error {
				return writeVerse(tx, rec)
			}); err != nil {
				return err
			}
			report.Succeeded++
			if ig.OnProgress != nil && processed%ig.batchSize() == 0 {
				ig.OnProgress(report.Skipped+processed, report.Total)
			}
			return nil
		}

		for {
			select {
			case <-ctx.Done():
				doneCh <- ctx.Err()
				return
			default:
			}

			res, ok := <-resultCh
			if !ok {
				// Channel closed: drain remaining contiguous results.
				for {
					item, ok := buffer[nextIdx]
					if !ok {
						break
					}
					delete(buffer, nextIdx)
					if err := handle(item); err != nil {
						cancel()
						doneCh <- err
						return
					}
					nextIdx++
				}
				if ig.OnProgress != nil {
					ig.OnProgress(report.Skipped+processed, report.Total)
				}
				doneCh <- nil
				return
			}

			buffer[res.idx] = res
			for {
				item, ok := buffer[nextIdx]
				if !ok {
					break
				}
				delete(buffer, nextIdx)
				if err := handle(item); err != nil {
					cancel()
					doneCh <- err
					return
				}
				nextIdx++
			}
		}
	}()

	// Producer: submit one fetch job per remaining unit.
	var runErr error
Loop:
	for _, u := range work {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break Loop
		default:
		}

		u := u
		job := func(jctx context.Context) {
			res := fetchResult{idx: u.idx, key: u.key}
			rec, err := ig.Fetcher.FetchVerse(jctx, u.key)
			if err != nil {
				res.fail = asFailure(err)
			} else {
				res.rec = rec
			}
			select {
			case resultCh <- res:
			case <-jctx.Done():
			}
		}

		if err := pool.Submit(ctx, job); err != nil {
			if err == ctx.Err() || err == ErrPoolClosed {
				runErr = err
				break Loop
			}
			cancel()
			pool.Close()
			return report, err
		}
	}

	// No more jobs: wait for in-flight fetches, then signal the consumer.
	pool.Close()
	close(resultCh)

	consumerErr := <-doneCh
	if err := bw.Close(); err != nil && consumerErr == nil {
		consumerErr = err
	}
	if consumerErr == nil {
		consumerErr = runErr
	}
	return report, consumerErr
}

func (ig *Ingester) recordFailure(report *Report, key fetch.VerseKey, kind string, attempts int, err error) {
	report.Failed = append(report.Failed, UnitFailure{
		Key:      key,
		Kind:     kind,
		Attempts: attempts,
		Reason:   err.Error(),
	})
	if ig.Logger != nil {
		ig.Logger.Warn("unit failed", "key", key.String(), "kind", kind, "attempts", attempts, "err", err)
	}
}

func (ig *Ingester) batchSize() int {
	if ig.BatchSize > 0 {
		return ig.BatchSize
	}
	return 50
}

// writeVerse persists one verse and its words inside the batch transaction.
func writeVerse(tx *sql.Tx, rec *fetch.VerseRecord) error {
	a := &db.Ayat{
		ID:           rec.AyatID,
		SuraID:       rec.SuraID,
		AyatNumber:   rec.AyatNumber,
		Text:         rec.Text,
		JuzID:        rec.JuzNumber,
		HezbID:       rec.HezbNumber,
		PageID:       rec.PageNumber,
		SajdahNumber: rec.SajdahNumber,
		AudioURL:     rec.AudioURL,
	}
	if err := db.UpsertAyat(tx, a); err != nil {
		return err
	}
	for _, w := range rec.Words {
		word := &db.Word{
			ID:         w.ID,
			AyatID:     rec.AyatID,
			WordNumber: w.Position,
			Text:       w.Text,
			Type:       w.Type,
			PageNumber: w.PageNumber,
			LineNumber: w.LineNumber,
			AudioURL:   w.AudioURL,
		}
		if err := db.UpsertWord(tx, word); err != nil {
			return err
		}
	}
	return nil
}

// missingParent validates the record's foreign keys against the seeded id
// sets before the write, so a constraint defect fails only its own unit
// instead of rolling back a whole batch.
func missingParent(rec *fetch.VerseRecord, suras, juzs, hezbs, pages map[int]bool) string {
	switch {
	case !suras[rec.SuraID]:
		return fmt.Sprintf("sura %d not seeded", rec.SuraID)
	case !juzs[rec.JuzNumber]:
		return fmt.Sprintf("juz %d not seeded", rec.JuzNumber)
	case !hezbs[rec.HezbNumber]:
		return fmt.Sprintf("hezb %d not seeded", rec.HezbNumber)
	case !pages[rec.PageNumber]:
		return fmt.Sprintf("page %d not seeded", rec.PageNumber)
	}
	return ""
}

// asFailure normalizes any fetch error into a *fetch.Failure.
func asFailure(err error) *fetch.Failure {
	var f *fetch.Failure
	if errors.As(err, &f) {
		return f
	}
	return &fetch.Failure{Kind: fetch.KindTransport, Attempts: 1, Err: err}
}
