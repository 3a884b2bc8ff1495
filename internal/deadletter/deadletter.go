// Package deadletter archives queue entries that were popped but could not
// be dispatched. A popped entry is gone from the durable queue, so an
// unrecoverable dispatch failure would otherwise lose the event silently;
// the archive keeps a compressed copy on disk for alerting and replay.
package deadletter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
)

// Capture reasons.
const (
	ReasonActionNotRegistered = "action_not_registered"
	ReasonHandlerError        = "handler_error"
)

// Record is one archived event.
type Record struct {
	Time   int64           `json:"time"`
	Reason string          `json:"reason"`
	Key    string          `json:"key"`
	Error  string          `json:"error"`
	Entry  json.RawMessage `json:"entry"`
}

// Archive appends records to per-day zstd files. Each record is written as
// an independent frame, so appends need no shared encoder state and a
// partially written file stays readable up to the last complete frame.
type Archive struct {
	dir     string
	mu      sync.Mutex
	encoder *zstd.Encoder
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates an archive rooted at dir, creating it if needed.
func New(dir string, log *logger.Logger, m *metrics.Metrics) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dead letter dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	return &Archive{
		dir:     dir,
		encoder: encoder,
		log:     log.WithModule("deadletter"),
		metrics: m,
	}, nil
}

// Capture archives one dropped entry. Best effort: an archive failure is
// logged but never propagated, because the caller is already on a failure
// path.
func (a *Archive) Capture(ctx context.Context, reason, key string, entry []byte, cause error) {
	rec := Record{
		Time:   time.Now().Unix(),
		Reason: reason,
		Key:    key,
		Entry:  entry,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		a.log.WithError(err).Errorf("encode dead letter record for %s", key)
		return
	}
	line = append(line, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	path := a.currentFile()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		a.log.WithError(err).Errorf("open dead letter file %s", path)
		return
	}
	defer f.Close()

	frame := a.encoder.EncodeAll(line, nil)
	if _, err := f.Write(frame); err != nil {
		a.log.WithError(err).Errorf("write dead letter record for %s", key)
		return
	}

	a.metrics.RecordDeadLetter(reason)
	a.log.WithField("reason", reason).Warnf("archived dropped event for %s", key)
}

// currentFile returns today's archive path. Must be called with mu held.
func (a *Archive) currentFile() string {
	return filepath.Join(a.dir, fmt.Sprintf("deadletter-%s.jsonl.zst", time.Now().UTC().Format("20060102")))
}

// Sealed returns archive files that are no longer being appended to
// (everything except today's file), oldest first. The uploader ships and
// removes these.
func (a *Archive) Sealed() ([]string, error) {
	entries, err := filepath.Glob(filepath.Join(a.dir, "deadletter-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	current := a.currentFile()
	a.mu.Unlock()

	sealed := make([]string, 0, len(entries))
	for _, path := range entries {
		if path == current {
			continue
		}
		sealed = append(sealed, path)
	}
	return sealed, nil
}

// Read decodes all records from an archive file.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var records []Record
	scanner := bufio.NewScanner(dec)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, err
	}
	return records, nil
}
