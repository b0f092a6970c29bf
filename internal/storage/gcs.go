package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
)

// GCSSink publishes artifacts to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	if bucket == "" {
		return nil, errors.New("gcs sink: bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs sink: create client: %w", err)
	}
	return &GCSSink{client: client, bucket: client.Bucket(bucket), name: bucket, prefix: prefix}, nil
}

func (g *GCSSink) Name() string { return "gcs" }

// Publish writes the object only if it does not exist yet; a retried
// publication of the same artifact is not an error.
func (g *GCSSink) Publish(ctx context.Context, jobID, name string, data []byte) (string, error) {
	key := objectKey(g.prefix, jobID, name)
	w := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType(name)
	w.Metadata = map[string]string{"job-id": jobID}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			log.Debug().Str("object", key).Msg("artifact already in GCS, skipping")
		} else {
			return "", fmt.Errorf("failed to finalize GCS write: %w", err)
		}
	}
	return fmt.Sprintf("gs://%s/%s", g.name, key), nil
}

func (g *GCSSink) Ping(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	return err
}

func (g *GCSSink) Close() error { return g.client.Close() }
