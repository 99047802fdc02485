// Package export renders specimen records to JSON files and stores them
// through the blob layer. Exports run asynchronously on a single worker
// goroutine; a synchronous path is provided for direct writes.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"fieldcore/internal/core"
	blobcore "fieldcore/internal/infra/blob/core"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record tracks an export request and its outcome.
type Record struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	RequestedBy string     `json:"requestedBy,omitempty"`
	RecordCount int        `json:"recordCount"`
	SizeBytes   int64      `json:"sizeBytes"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (r Record) copy() Record {
	out := r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// Input is an enqueue request.
type Input struct {
	RequestedBy string
	Filter      core.SpecimenFilter
	// Prefix is prepended to the generated object key, e.g. "exports/".
	Prefix string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	Key        string    `json:"key,omitempty"`
	Status     Status    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// MemoryAuditLogger retains entries in memory for inspection.
type MemoryAuditLogger struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func NewMemoryAuditLogger() *MemoryAuditLogger { return &MemoryAuditLogger{} }

func (l *MemoryAuditLogger) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries in order.
func (l *MemoryAuditLogger) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Key returns the object key for an export created at t, named by the UTC
// creation date.
func Key(t time.Time) string {
	return fmt.Sprintf("specimens-export-%s.json", t.UTC().Format("2006-01-02"))
}

// Worker executes specimen exports asynchronously.
type Worker struct {
	service *core.Service
	blobs   blobcore.Store
	audit   AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	nowFn func() time.Time
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the collection service and a
// blob store. A nil audit logger disables audit recording.
func NewWorker(service *core.Service, blobs blobcore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		service: service,
		blobs:   blobs,
		audit:   audit,
		queue:   make(chan task, 32),
		jobs:    make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	now := w.nowFn()
	record := Record{
		ID:          uuid.NewString(),
		Key:         input.Prefix + Key(now),
		Status:      StatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Admit the task before registering the job so a full queue leaves no
	// orphaned record or audit entry behind. The lock covers both steps, so
	// the worker cannot pick up the task before the job is registered.
	w.mu.Lock()
	select {
	case w.queue <- task{id: record.ID, input: input}:
	default:
		w.mu.Unlock()
		return Record{}, fmt.Errorf("export queue full")
	}
	w.jobs[record.ID] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.logAudit(ctx, queued, "")
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.setStatus(t.id, StatusRunning, "")

	payload, count, err := w.render(w.ctx, t.input.Filter)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("render export: %v", err))
		return
	}

	w.mu.RLock()
	key := w.jobs[t.id].Key
	w.mu.RUnlock()

	info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"recordCount": strconv.Itoa(count)},
	})
	if err != nil {
		w.fail(t.id, fmt.Sprintf("store export: %v", err))
		return
	}

	now := w.nowFn()
	w.mu.Lock()
	record := w.jobs[t.id]
	record.Status = StatusSucceeded
	record.RecordCount = count
	record.SizeBytes = info.Size
	record.UpdatedAt = now
	record.CompletedAt = &now
	snapshot := record.copy()
	w.mu.Unlock()

	w.logAudit(w.ctx, snapshot, "")
}

func (w *Worker) render(ctx context.Context, filter core.SpecimenFilter) ([]byte, int, error) {
	specimens, err := w.service.FilterSpecimens(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	payload, err := json.MarshalIndent(specimens, "", "  ")
	if err != nil {
		return nil, 0, err
	}
	return payload, len(specimens), nil
}

// ExportTo writes the export synchronously to out, returning the number of
// records written.
func (w *Worker) ExportTo(ctx context.Context, out io.Writer, filter core.SpecimenFilter) (int, error) {
	payload, count, err := w.render(ctx, filter)
	if err != nil {
		return 0, err
	}
	if _, err := out.Write(payload); err != nil {
		return 0, err
	}
	return count, nil
}

func (w *Worker) setStatus(id string, status Status, detail string) {
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.Status = status
	record.Error = detail
	record.UpdatedAt = w.nowFn()
	w.mu.Unlock()
}

func (w *Worker) fail(id, detail string) {
	now := w.nowFn()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	record.Status = StatusFailed
	record.Error = detail
	record.UpdatedAt = now
	record.CompletedAt = &now
	snapshot := record.copy()
	w.mu.Unlock()

	w.logAudit(w.ctx, snapshot, detail)
}

func (w *Worker) logAudit(ctx context.Context, record Record, detail string) {
	if w.audit == nil {
		return
	}
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "specimen_export",
		Actor:      record.RequestedBy,
		Key:        record.Key,
		Status:     record.Status,
		Detail:     detail,
		OccurredAt: w.nowFn(),
	})
}
