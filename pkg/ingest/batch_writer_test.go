package ingest

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// Writer tests run without a DB: executeBatch invokes the callbacks with a
// nil tx, which is all the flushing semantics need.

func TestBatchWriterFlushesAtCapacity(t *testing.T) {
	bw := NewBatchWriter(nil, 3, 0)

	var applied int32
	for i := 0; i < 3; i++ {
		err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			atomic.AddInt32(&applied, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&applied) != 3 {
		select {
		case <-deadline:
			t.Fatalf("batch not committed at capacity: %d/3", atomic.LoadInt32(&applied))
		case <-time.After(time.Millisecond):
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBatchWriterFlushesOnInterval(t *testing.T) {
	bw := NewBatchWriter(nil, 100, 10*time.Millisecond)

	var applied int32
	err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
		atomic.AddInt32(&applied, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(time.Second)
	for atomic.LoadInt32(&applied) != 1 {
		select {
		case <-deadline:
			t.Fatal("interval flush never happened")
		case <-time.After(time.Millisecond):
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestBatchWriterCloseFlushesRemainder(t *testing.T) {
	bw := NewBatchWriter(nil, 100, 0)

	var applied int32
	for i := 0; i < 7; i++ {
		err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			atomic.AddInt32(&applied, 1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := atomic.LoadInt32(&applied); got != 7 {
		t.Fatalf("close flushed %d/7 records", got)
	}
}

func TestBatchWriterSubmitAfterClose(t *testing.T) {
	bw := NewBatchWriter(nil, 2, 0)
	if err := bw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return nil })
	if err != ErrBatchWriterClosed {
		t.Fatalf("expected ErrBatchWriterClosed, got %v", err)
	}
	if err := bw.Close(); err != ErrBatchWriterClosed {
		t.Fatalf("second close: expected ErrBatchWriterClosed, got %v", err)
	}
}

func TestBatchWriterSurfacesBatchError(t *testing.T) {
	bw := NewBatchWriter(nil, 1, 0)

	var notified atomic.Bool
	bw.OnError = func(err error) { notified.Store(true) }

	boom := errors.New("boom")
	if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error { return boom }); err != nil {
		t.Fatalf("submit: %v", err)
	}

	err := bw.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("close error = %v, want boom", err)
	}
	if !notified.Load() {
		t.Fatal("OnError was not invoked")
	}
}
