package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/familyorganizer/eventsourcing"
)

var _ eventsourcing.EventStore = (*FileStore)(nil)

const (
	streamsDir  = "streams"
	batchSuffix = ".json"
	tmpPattern  = "batch-*.tmp"
)

// FileStore keeps the events of each aggregate under <dir>/streams/<aggregate>/,
// one JSON file per appended batch named after the first version it holds.
//
// A batch is written to a temp file and published with os.Link, which fails
// when the name exists. Two writers that read the same head therefore race
// for the same file name and the loser gets a *ConcurrencyConflictError, also
// when the writers are separate processes sharing the directory. Readers only
// ever see complete batches.
type FileStore struct {
	dir   string
	codec *eventsourcing.Codec

	mu     sync.RWMutex
	closed bool
}

// NewFileStore opens or creates a store rooted at dir.
func NewFileStore(dir string, codec *eventsourcing.Codec) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, streamsDir), 0o755); err != nil {
		return nil, eventsourcing.WrapStorageError("open", err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

func (f *FileStore) streamDir(aggregateID string) string {
	name := url.PathEscape(aggregateID)
	if name == "." || name == ".." {
		name = strings.ReplaceAll(name, ".", "%2E")
	}
	return filepath.Join(f.dir, streamsDir, name)
}

func batchFile(first uint64) string {
	return fmt.Sprintf("%020d%s", first, batchSuffix)
}

// parseBatchFile returns the first version of a published batch file name.
func parseBatchFile(name string) (uint64, bool) {
	num, ok := strings.CutSuffix(name, batchSuffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// batches lists the published batches of a stream directory by first version.
func batches(sdir string) ([]uint64, error) {
	entries, err := os.ReadDir(sdir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var firsts []uint64
	for _, e := range entries {
		if first, ok := parseBatchFile(e.Name()); ok {
			firsts = append(firsts, first)
		}
	}
	// zero padded names: ReadDir order is version order
	return firsts, nil
}

// head reads the last stored version of a stream from disk.
func head(sdir string) (uint64, error) {
	firsts, err := batches(sdir)
	if err != nil || len(firsts) == 0 {
		return 0, err
	}
	last := firsts[len(firsts)-1]
	records, err := readBatch(filepath.Join(sdir, batchFile(last)))
	if err != nil {
		return 0, err
	}
	return last + uint64(len(records)) - 1, nil
}

func (f *FileStore) Append(ctx context.Context, events []eventsourcing.DomainEvent, expectedVersion uint64) (eventsourcing.AppendResult, error) {
	if err := eventsourcing.ValidateBatch(events, expectedVersion); err != nil {
		return eventsourcing.AppendResult{}, err
	}
	records, err := f.codec.EncodeAll(events)
	if err != nil {
		return eventsourcing.AppendResult{}, err
	}
	aggregateID := events[0].AggregateID

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", eventsourcing.ErrEventStoreIsClosed)
	}

	sdir := f.streamDir(aggregateID)
	current, err := head(sdir)
	if err != nil {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}
	if current > expectedVersion {
		return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   current,
		}
	}
	if current < expectedVersion {
		return eventsourcing.AppendResult{}, fmt.Errorf(
			"append to %q: %w: stream is at version %d, expected %d",
			aggregateID, eventsourcing.ErrInvalidEventBatch, current, expectedVersion,
		)
	}
	if err := ctx.Err(); err != nil {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	err = publish(sdir, batchFile(expectedVersion+1), records)
	if errors.Is(err, fs.ErrExist) {
		actual, _ := head(sdir)
		return eventsourcing.AppendResult{}, &eventsourcing.ConcurrencyConflictError{
			AggregateID:     aggregateID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
			Err:             err,
		}
	}
	if err != nil {
		return eventsourcing.AppendResult{}, eventsourcing.WrapStorageError("append", err)
	}

	return eventsourcing.AppendResult{
		AggregateID:         aggregateID,
		NextExpectedVersion: expectedVersion + uint64(len(records)),
	}, nil
}

// publish writes records to a temp file and links it to name. The link fails
// with fs.ErrExist when another writer published the same batch first.
func publish(sdir, name string, records []eventsourcing.Record) error {
	stored := make([]storedRecord, len(records))
	for i, rec := range records {
		stored[i] = storedRecord(rec)
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(sdir, tmpPattern)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	return os.Link(tmp.Name(), filepath.Join(sdir, name))
}

func (f *FileStore) GetEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]eventsourcing.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, eventsourcing.WrapStorageError("get events", err)
	}
	records, err := f.readStream(f.streamDir(aggregateID), fromVersion)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events", err)
	}

	events, err := f.codec.DecodeAll(records)
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByVersion(events)
	return events, nil
}

func (f *FileStore) GetEventsByType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.DomainEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, eventsourcing.WrapStorageError("get events by type", err)
	}
	records, err := f.readType(ctx, eventType, window)
	if err != nil {
		return nil, eventsourcing.WrapStorageError("get events by type", err)
	}

	events, err := f.codec.DecodeAll(records)
	if err != nil {
		return nil, err
	}
	eventsourcing.SortByTimestamp(events)
	return events, nil
}

func (f *FileStore) readStream(sdir string, fromVersion uint64) ([]eventsourcing.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, eventsourcing.ErrEventStoreIsClosed
	}
	return readBatches(sdir, fromVersion)
}

func (f *FileStore) readType(ctx context.Context, eventType string, window eventsourcing.TimeWindow) ([]eventsourcing.Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, eventsourcing.ErrEventStoreIsClosed
	}

	streams, err := os.ReadDir(filepath.Join(f.dir, streamsDir))
	if err != nil {
		return nil, err
	}
	var records []eventsourcing.Record
	for _, s := range streams {
		if !s.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		all, err := readBatches(filepath.Join(f.dir, streamsDir, s.Name()), 1)
		if err != nil {
			return nil, err
		}
		for _, rec := range all {
			if rec.EventType == eventType && window.Contains(rec.Timestamp) {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

// readBatches returns the records of a stream with Version >= fromVersion.
func readBatches(sdir string, fromVersion uint64) ([]eventsourcing.Record, error) {
	firsts, err := batches(sdir)
	if err != nil {
		return nil, err
	}
	var records []eventsourcing.Record
	for i, first := range firsts {
		// a batch ends right before the next one starts
		if i+1 < len(firsts) && firsts[i+1] <= fromVersion {
			continue
		}
		batch, err := readBatch(filepath.Join(sdir, batchFile(first)))
		if err != nil {
			return nil, err
		}
		for _, rec := range batch {
			if rec.Version >= fromVersion {
				records = append(records, rec)
			}
		}
	}
	return records, nil
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type storedRecord struct {
	EventID       uuid.UUID `json:"event_id"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	EventType     string    `json:"event_type"`
	Data          []byte    `json:"data"`
	Metadata      []byte    `json:"metadata"`
	Version       uint64    `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
	UserID        string    `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

func readBatch(path string) ([]eventsourcing.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var stored []storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("decode %s: empty batch", filepath.Base(path))
	}
	records := make([]eventsourcing.Record, len(stored))
	for i, s := range stored {
		records[i] = eventsourcing.Record(s)
	}
	return records, nil
}
