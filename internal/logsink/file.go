package logsink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const truncatedSuffix = "...[truncated]"

// FileSink writes each record to <dir>/<id>.json. Captured stderr longer
// than maxSize is truncated. Files older than the retention period are
// removed by Cleanup.
type FileSink struct {
	dir       string
	maxSize   int
	retention time.Duration
}

// NewFileSink creates dir when missing.
func NewFileSink(dir string, maxSize int, retention time.Duration) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create record dir: %w", err)
	}
	return &FileSink{dir: dir, maxSize: maxSize, retention: retention}, nil
}

func (s *FileSink) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileSink) Save(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("invocation record id is required")
	}
	prepare(rec)

	out := *rec
	if s.maxSize > 0 && len(out.Stderr) > s.maxSize {
		out.Stderr = out.Stderr[:s.maxSize] + truncatedSuffix
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path(rec.ID), data, 0644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (s *FileSink) SaveBatch(ctx context.Context, recs []*Record) error {
	for _, rec := range recs {
		if err := s.Save(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a stored record. Expired records are removed and reported as
// missing.
func (s *FileSink) Load(id string) (*Record, bool) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	if s.retention > 0 && time.Since(rec.CreatedAt) > s.retention {
		os.Remove(path)
		return nil, false
	}
	return &rec, true
}

// Cleanup removes record files older than the retention period and returns
// how many were removed.
func (s *FileSink) Cleanup() int {
	if s.retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) > s.retention {
			if os.Remove(filepath.Join(s.dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}

// Close sweeps expired records.
func (s *FileSink) Close() error {
	s.Cleanup()
	return nil
}
