package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalSink writes artifacts below a directory, one subdirectory per job.
type LocalSink struct {
	dir       string
	retention time.Duration
}

func NewLocalSink(dir string, retention time.Duration) (*LocalSink, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "pdfassembler")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local sink: %w", err)
	}
	return &LocalSink{dir: dir, retention: retention}, nil
}

func (l *LocalSink) Name() string { return "local" }

// Publish stores the artifact and returns its filesystem path. Old
// artifacts are swept on every publish.
func (l *LocalSink) Publish(_ context.Context, jobID, name string, data []byte) (string, error) {
	jobDir := filepath.Join(l.dir, safeSegment(jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(jobDir, safeSegment(name))
	tmp := p + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if l.retention > 0 {
		l.Sweep(l.retention)
	}
	return p, nil
}

// Sweep removes artifacts older than maxAge and the job directories they
// leave empty.
func (l *LocalSink) Sweep(maxAge time.Duration) int {
	now := time.Now()
	removed := 0
	_ = filepath.Walk(l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() { return nil }
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(path) == nil { removed++ }
		}
		return nil
	})
	entries, _ := os.ReadDir(l.dir)
	for _, e := range entries {
		if !e.IsDir() { continue }
		sub := filepath.Join(l.dir, e.Name())
		if rest, err := os.ReadDir(sub); err == nil && len(rest) == 0 {
			_ = os.Remove(sub)
		}
	}
	return removed
}

func (l *LocalSink) Ping(context.Context) error {
	info, err := os.Stat(l.dir)
	if err != nil { return err }
	if !info.IsDir() { return fmt.Errorf("%s is not a directory", l.dir) }
	return nil
}

// safeSegment keeps a caller-influenced name inside its directory.
func safeSegment(s string) string {
	s = filepath.Base(strings.ReplaceAll(s, "\\", "/"))
	if s == "." || s == ".." || s == "/" || s == "" {
		return "_"
	}
	return s
}
