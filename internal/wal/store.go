// Package wal implements the write-ahead log: an append-only, checksummed,
// newline-delimited JSON log of Operations plus on-demand snapshots, from
// which materialized state is recovered on startup.
package wal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/alfredjeanlab/oj/internal/metrics"
	"github.com/alfredjeanlab/oj/internal/state"
	"github.com/alfredjeanlab/oj/internal/tracing"
)

// ErrCorrupt identifies a corrupt WAL entry. Open and Replay do not return
// it: a WAL line or snapshot file that fails checksum or deserialization is
// logged (by Open) and skipped or truncated, never treated as fatal.
var ErrCorrupt = errors.New("wal: corrupt entry")

const snapshotDirName = "snapshots"
const walFileName = "wal.jsonl"

// Store owns the on-disk log file and snapshot directory for one project.
// It is the single writer of the log; readers of materialized state go
// through the State it was opened with.
type Store struct {
	mu        sync.Mutex
	dir       string
	file      *os.File
	machineID string
	sequence  uint64
	state     *state.State
}

// Open recovers a Store rooted at dir (the daemon passes
// fsutil.WALDirPath, i.e. "{project}/.oj/operations"; it does not use
// "{project}/.build/operations"): it loads the newest valid snapshot (if
// any), replays WAL entries after the snapshot's sequence, and opens the log
// file for further appends. A truncated tail line is discarded and the file
// is truncated to the last good byte, matching the durability contract.
func Open(dir, machineID string) (*Store, error) {
	_, span := tracing.Tracer("wal").Start(context.Background(), "wal.replay",
		trace.WithAttributes(attribute.String("dir", dir)))
	defer span.End()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: create dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Join(dir, snapshotDirName), 0o755); err != nil {
		return nil, fmt.Errorf("wal: create snapshot dir: %w", err)
	}

	st := state.New()
	snapSeq := uint64(0)
	if seq, ok, err := loadNewestSnapshot(dir, st); err != nil {
		return nil, err
	} else if ok {
		snapSeq = seq
	}

	path := filepath.Join(dir, walFileName)
	maxSeq, err := replayTail(path, snapSeq, st)
	if err != nil {
		return nil, err
	}
	if maxSeq > snapSeq {
		snapSeq = maxSeq
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open log: %w", err)
	}

	return &Store{
		dir:       dir,
		file:      f,
		machineID: machineID,
		sequence:  snapSeq,
		state:     st,
	}, nil
}

// State returns the materialized state recovered (and subsequently
// maintained) by this store.
func (s *Store) State() *state.State { return s.state }

// Append durably writes op as the next WAL entry, applies it to the
// materialized state, and returns its sequence number. The write is flushed
// to disk (File.Sync) before returning, so the caller may treat the
// operation as durable the moment Append returns without error.
func (s *Store) Append(op Operation) (seq uint64, err error) {
	_, span := tracing.Tracer("wal").Start(context.Background(), "wal.append",
		trace.WithAttributes(attribute.String("op.kind", string(op.Kind))))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	seq = s.sequence + 1
	entry, err := NewEntry(seq, uint64(time.Now().UnixMicro()), s.machineID, op)
	if err != nil {
		return 0, fmt.Errorf("wal: build entry: %w", err)
	}

	line, err := entry.ToLine()
	if err != nil {
		return 0, fmt.Errorf("wal: marshal entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return 0, fmt.Errorf("wal: write entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("wal: fsync: %w", err)
	}

	s.sequence = seq
	s.state.Apply(op)
	metrics.WALAppendsTotal.Inc()
	return seq, nil
}

// Sequence returns the highest sequence number appended or recovered so far.
func (s *Store) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Close flushes and closes the underlying log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// snapshotMeta is the header of a snapshot file.
type snapshotMeta struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	SnapshotID string    `json:"snapshot_id"`
}

type snapshotFile struct {
	Meta  snapshotMeta    `json:"meta"`
	State state.Storable  `json:"state"`
}

// Snapshot captures the current materialized state to
// snapshots/{sequence}-{timestamp}.json and appends a SnapshotTaken marker
// so that replay knows the snapshot was durably recorded.
func (s *Store) Snapshot(snapshotID string) error {
	s.mu.Lock()
	storable := s.state.Snapshot()
	seq := s.sequence
	s.mu.Unlock()

	now := time.Now()
	payload := snapshotFile{
		Meta:  snapshotMeta{Sequence: seq, Timestamp: now, SnapshotID: snapshotID},
		State: storable,
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("wal: marshal snapshot: %w", err)
	}

	name := fmt.Sprintf("%020d-%d.json", seq, now.UnixMicro())
	path := filepath.Join(s.dir, snapshotDirName, name)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("wal: write snapshot: %w", err)
	}

	if _, err := s.Append(NewSnapshotTaken(snapshotID)); err != nil {
		return fmt.Errorf("wal: record snapshot taken: %w", err)
	}
	return nil
}

// loadNewestSnapshot scans the snapshot directory for the newest file whose
// payload deserializes, restores st from it, and returns its sequence. A
// snapshot file that fails to parse is skipped, not fatal, matching the
// corruption-tolerance contract.
func loadNewestSnapshot(dir string, st *state.State) (uint64, bool, error) {
	snapDir := filepath.Join(dir, snapshotDirName)
	entries, err := os.ReadDir(snapDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("wal: list snapshots: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(snapDir, name))
		if err != nil {
			continue
		}
		var payload snapshotFile
		if err := json.Unmarshal(b, &payload); err != nil {
			slog.Warn("wal: skipping unreadable snapshot", "file", name, "error", err)
			continue
		}
		st.Restore(payload.State)
		return payload.Meta.Sequence, true, nil
	}
	return 0, false, nil
}

// replayTail reads the log file, applying every entry whose sequence is
// greater than snapSeq to st, and returns the highest sequence observed. It
// stops at the first entry that fails to parse or fails its checksum,
// truncating the file to the last good line so a future append starts
// cleanly - this is what makes recovery from a crash mid-append idempotent.
func replayTail(path string, snapSeq uint64, st *state.State) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return snapSeq, nil
		}
		return 0, fmt.Errorf("wal: open log for replay: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	maxSeq := snapSeq
	var goodBytes int64
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1 // + newline

		entry, err := EntryFromLine(line)
		if err != nil || !entry.Verify() {
			slog.Warn("wal: truncating at corrupt entry", "error", err)
			break
		}

		if entry.Sequence > snapSeq {
			st.Apply(entry.Operation)
		}
		if entry.Sequence > maxSeq {
			maxSeq = entry.Sequence
		}
		goodBytes += lineLen
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return 0, fmt.Errorf("wal: scan log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat log: %w", err)
	}
	if info.Size() != goodBytes {
		if err := os.Truncate(path, goodBytes); err != nil {
			return 0, fmt.Errorf("wal: truncate corrupt tail: %w", err)
		}
	}

	return maxSeq, nil
}

// ParseSequenceFromSnapshotName extracts the sequence prefix from a
// snapshot filename of the form "{sequence}-{timestamp}.json", used by
// tooling that lists snapshots without loading them.
func ParseSequenceFromSnapshotName(name string) (uint64, error) {
	base := strings.TrimSuffix(filepath.Base(name), ".json")
	parts := strings.SplitN(base, "-", 2)
	if len(parts) == 0 {
		return 0, fmt.Errorf("wal: malformed snapshot name %q", name)
	}
	return strconv.ParseUint(parts[0], 10, 64)
}

// Replay is a standalone helper that reads the log file at path from the
// start, ignoring any existing snapshot, and returns every operation up to
// the first corrupt entry - equivalent to applying the WAL op-by-op to an
// empty state. It does not truncate the file.
func Replay(path string) ([]Operation, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var ops []Operation
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		entry, err := EntryFromLine(line)
		if err != nil || !entry.Verify() {
			break
		}
		ops = append(ops, entry.Operation)
	}
	return ops, nil
}
