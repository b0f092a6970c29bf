package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// Sink receives finished artifacts for publication outside the HTTP
// response.
type Sink interface {
	Name() string
	Publish(ctx context.Context, jobID, name string, data []byte) (string, error)
	Ping(ctx context.Context) error
}

// Options selects and configures a sink.
type Options struct {
	Kind      string // "none"|"local"|"s3"|"gcs"
	LocalDir  string
	Retention time.Duration
	Prefix    string
	S3        S3Options
	GCSBucket string
}

// New returns the configured sink, or nil when publication is disabled.
func New(ctx context.Context, opts Options) (Sink, error) {
	switch strings.ToLower(opts.Kind) {
	case "", "none":
		return nil, nil
	case "local":
		s, err := NewLocalSink(opts.LocalDir, opts.Retention)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "s3":
		s3opts := opts.S3
		if s3opts.Prefix == "" {
			s3opts.Prefix = opts.Prefix
		}
		s, err := NewS3Sink(ctx, s3opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "gcs":
		s, err := NewGCSSink(ctx, opts.GCSBucket, opts.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown artifact sink %q", opts.Kind)
}

func objectKey(prefix, jobID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), jobID, safeSegment(name))
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	}
	return "application/octet-stream"
}
