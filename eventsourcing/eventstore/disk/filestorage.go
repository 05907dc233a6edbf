// Package disk stores every event as one JSON file inside a per-stream directory.
// A file is named after its zero-padded stream version only and is published by
// hard-linking a fully written temp file, so two writers racing for the same
// version cannot both succeed, even across processes, and readers never see a
// partial event.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	es "github.com/terraskye/fleetrental/eventsourcing"
)

var _ es.EventStore = (*FileStore)(nil)

type FileStore struct {
	baseDir  string
	registry *es.Registry
	mu       sync.Mutex
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithRegistry sets the registry used to decode stored events.
func WithRegistry(r *es.Registry) Option {
	return func(f *FileStore) { f.registry = r }
}

func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event directory %q: %w", dir, err)
	}
	f := &FileStore{
		baseDir:  dir,
		registry: es.DefaultRegistry,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FileStore) streamDir(id string) string {
	return filepath.Join(f.baseDir, url.PathEscape(id))
}

func (f *FileStore) Save(ctx context.Context, events []es.Envelope, revision es.StreamState) (es.AppendResult, error) {
	if len(events) == 0 {
		return es.AppendResult{Successful: true}, nil
	}

	id, err := es.ValidateBatch(events)
	if err != nil {
		return es.AppendResult{}, err
	}
	sdir := f.streamDir(id)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(sdir, 0o755); err != nil {
		return es.AppendResult{}, es.WrapEventStoreError(err)
	}

	versions, err := listVersions(sdir)
	if err != nil {
		return es.AppendResult{}, es.WrapEventStoreError(err)
	}
	currentVersion := uint64(len(versions))

	if err := es.CheckStreamState(id, revision, currentVersion); err != nil {
		return es.AppendResult{StreamID: id, NextExpectedVersion: currentVersion}, err
	}

	written := make([]string, 0, len(events))
	rollback := func() {
		for _, path := range written {
			_ = os.Remove(path)
		}
	}

	for i := range events {
		if err := ctx.Err(); err != nil {
			rollback()
			return es.AppendResult{}, err
		}

		version := currentVersion + uint64(i) + 1
		eventType, data, err := f.registry.Encode(events[i].Event)
		if err != nil {
			rollback()
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}

		serialized, err := json.Marshal(storedEvent{
			EventID:    events[i].EventID,
			StreamID:   id,
			Metadata:   events[i].Metadata,
			EventType:  eventType,
			Data:       data,
			Version:    version,
			OccurredAt: events[i].OccurredAt,
		})
		if err != nil {
			rollback()
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}

		path := filepath.Join(sdir, fmt.Sprintf("%010d.json", version))
		if err := writeExclusive(path, serialized); err != nil {
			rollback()
			if errors.Is(err, fs.ErrExist) {
				// another process won the race for this version
				return es.AppendResult{}, &es.StreamRevisionConflictError{
					Stream:           id,
					ExpectedRevision: es.Revision(currentVersion),
					ActualRevision:   es.Revision(version),
				}
			}
			return es.AppendResult{}, es.WrapEventStoreError(err)
		}
		written = append(written, path)
	}

	return es.AppendResult{
		Successful:          true,
		StreamID:            id,
		NextExpectedVersion: currentVersion + uint64(len(events)),
	}, nil
}

func (f *FileStore) LoadStream(ctx context.Context, id string) (*es.Iterator[*es.Envelope], error) {
	dir := f.streamDir(id)
	files, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load stream %q: %w", id, es.ErrStreamNotFound)
		}
		return nil, es.WrapEventStoreError(err)
	}

	idx := 0
	return es.NewIteratorFunc(func(ctx context.Context) (*es.Envelope, error) {
		for idx < len(files) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			fi := files[idx]
			idx++
			if _, ok := parseVersion(fi); !ok {
				continue
			}

			data, err := os.ReadFile(filepath.Join(dir, fi.Name()))
			if err != nil {
				return nil, es.WrapEventStoreError(err)
			}
			return f.decode(data)
		}
		return nil, io.EOF
	}), nil
}

func (f *FileStore) decode(data []byte) (*es.Envelope, error) {
	var stored storedEvent
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, es.WrapEventStoreError(fmt.Errorf("cannot unmarshal stored event: %w", err))
	}

	ev, err := f.registry.Decode(stored.EventType, stored.Data)
	if err != nil {
		return nil, es.WrapEventStoreError(fmt.Errorf("cannot create event %q: %w", stored.EventType, err))
	}

	metadata := stored.Metadata
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &es.Envelope{
		EventID:    stored.EventID,
		StreamID:   stored.StreamID,
		Event:      ev,
		Metadata:   metadata,
		Version:    stored.Version,
		OccurredAt: stored.OccurredAt,
	}, nil
}

func (f *FileStore) Close() error {
	return nil
}

type storedEvent struct {
	EventID    uuid.UUID       `json:"event_id"`
	StreamID   string          `json:"stream_id"`
	Metadata   map[string]any  `json:"metadata"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	Version    uint64          `json:"version"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func listVersions(dir string) ([]uint64, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	versions := make([]uint64, 0, len(files))
	for _, fi := range files {
		if v, ok := parseVersion(fi); ok {
			versions = append(versions, v)
		}
	}
	return versions, nil
}

func parseVersion(fi fs.DirEntry) (uint64, bool) {
	if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSuffix(fi.Name(), ".json"), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// writeExclusive creates path with data, failing with fs.ErrExist when the
// name is taken.
func writeExclusive(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pending-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Link(tmp.Name(), path)
}
