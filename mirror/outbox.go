package mirror

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"planai-api/store"
)

// Remote is the cloud side the outbox delivers change events to.
type Remote interface {
	Push(ctx context.Context, ch store.Change) error
}

// Config tunes the outbox. Zero values fall back to sane defaults.
type Config struct {
	Dir          string
	SegmentBytes int64
	BufferSize   int
	Workers      int
	PushTimeout  time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SegmentBytes <= 0 {
		c.SegmentBytes = 64 * 1024 * 1024
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.PushTimeout <= 0 {
		c.PushTimeout = 30 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	return c
}

// Outbox durably records every store mutation in a WAL and delivers it
// asynchronously to the remote backend. It implements store.Recorder, so
// recording never blocks a mutation: on buffer saturation the event stays
// in the WAL and is retried by the redelivery loop. Delivery is
// last-write-wins on the remote side; ordering per entity follows the WAL
// offsets.
type Outbox struct {
	cfg    Config
	remote Remote
	logger *log.Logger
	wal    *wal

	workCh   chan *walRecord
	stopCh   chan struct{}
	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup

	mu        sync.Mutex
	inflight  map[uint64]*walRecord
	acked     map[uint64]struct{}
	nextAck   uint64
	closing   bool
	delivered atomic.Uint64
}

// NewOutbox opens the WAL, requeues undelivered records and starts the
// delivery workers.
func NewOutbox(cfg Config, remote Remote, logger *log.Logger) (*Outbox, error) {
	if remote == nil {
		panic("mirror.NewOutbox: remote is required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	cfg = cfg.withDefaults()

	w, pending, err := openWAL(walConfig{
		dir:          cfg.Dir,
		segmentBytes: cfg.SegmentBytes,
		logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	o := &Outbox{
		cfg:      cfg,
		remote:   remote,
		logger:   logger,
		wal:      w,
		workCh:   make(chan *walRecord, cfg.BufferSize),
		stopCh:   make(chan struct{}),
		inflight: make(map[uint64]*walRecord),
		acked:    make(map[uint64]struct{}),
		nextAck:  w.committedOffset,
	}
	for _, rec := range pending {
		o.inflight[rec.Offset] = rec
	}

	for i := 0; i < cfg.Workers; i++ {
		o.workerWG.Add(1)
		go o.worker()
	}
	go func() {
		for _, rec := range pending {
			select {
			case o.workCh <- rec:
			case <-o.stopCh:
				return
			}
		}
	}()

	return o, nil
}

// Record implements store.Recorder. The event is durable once this
// returns; delivery happens in the background.
func (o *Outbox) Record(ch store.Change) {
	rec := &walRecord{Change: ch, Timestamp: time.Now().UTC()}

	o.wal.mu.Lock()
	err := o.wal.appendRecordLocked(rec)
	o.wal.mu.Unlock()
	if err != nil {
		o.logger.WithError(err).Error("mirror wal append failed, change not mirrored")
		return
	}

	o.mu.Lock()
	o.inflight[rec.Offset] = rec
	o.mu.Unlock()

	select {
	case o.workCh <- rec:
	default:
		// Buffer saturated; the record is safe in the WAL, redeliver later.
		o.scheduleRetry(rec)
	}
}

func (o *Outbox) worker() {
	defer o.workerWG.Done()
	for {
		select {
		case rec, ok := <-o.workCh:
			if !ok {
				return
			}
			if rec == nil {
				continue
			}
			o.deliver(rec)
		case <-o.stopCh:
			return
		}
	}
}

func (o *Outbox) deliver(rec *walRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.PushTimeout)
	err := o.remote.Push(ctx, rec.Change)
	cancel()
	if err != nil {
		rec.Attempt++
		rec.LastErr = err.Error()
		o.logger.WithFields(log.Fields{
			"entity":  rec.Change.Entity,
			"op":      rec.Change.Op,
			"offset":  rec.Offset,
			"attempt": rec.Attempt,
		}).Errorf("mirror push failed: %v", err)
		o.scheduleRetry(rec)
		return
	}
	o.markDelivered(rec)
}

func (o *Outbox) markDelivered(rec *walRecord) {
	var maxCommit uint64

	o.mu.Lock()
	delete(o.inflight, rec.Offset)
	o.acked[rec.Offset] = struct{}{}
	o.delivered.Add(1)
	for {
		next := o.nextAck + 1
		if _, ok := o.acked[next]; !ok {
			break
		}
		delete(o.acked, next)
		o.nextAck = next
		maxCommit = next
	}
	o.mu.Unlock()

	if maxCommit > 0 {
		o.wal.mu.Lock()
		if err := o.wal.commitLocked(maxCommit); err != nil {
			o.logger.WithError(err).Error("failed to commit mirror WAL")
		}
		o.wal.mu.Unlock()
	}
}

func (o *Outbox) scheduleRetry(rec *walRecord) {
	delay := exponentialBackoff(rec.Attempt, o.cfg.RetryInitial, o.cfg.RetryMax)
	o.retryWG.Add(1)
	timer := time.NewTimer(delay)
	go func(r *walRecord) {
		defer o.retryWG.Done()
		defer timer.Stop()
		select {
		case <-timer.C:
			select {
			case o.workCh <- r:
			case <-o.stopCh:
			}
		case <-o.stopCh:
		}
	}(rec)
}

// Pending reports undelivered change events.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Delivered reports the number of pushed change events.
func (o *Outbox) Delivered() uint64 {
	return o.delivered.Load()
}

// Close stops the workers and closes the WAL. Undelivered records stay on
// disk and are replayed on the next start.
func (o *Outbox) Close() {
	o.mu.Lock()
	if o.closing {
		o.mu.Unlock()
		return
	}
	o.closing = true
	close(o.stopCh)
	o.mu.Unlock()

	o.workerWG.Wait()
	o.retryWG.Wait()
	o.wal.close()
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
