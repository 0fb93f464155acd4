package gcp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

type StorageConfig struct {
	// Credentials is a service account file path or inline JSON.
	Credentials string `yaml:"credentials"`
	// EmulatorHost points the client at a fake-gcs-server style emulator.
	EmulatorHost string `yaml:"emulator_host"`
}

// ObjectReader reads input files from GCS buckets.
type ObjectReader interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	List(ctx context.Context, bucket, prefix string) ([]string, error)
	Close() error
}

type objectReader struct {
	log    *logger.Logger
	client *storage.Client
}

func NewObjectReader(ctx context.Context, log *logger.Logger, cfg StorageConfig) (ObjectReader, error) {
	if log == nil {
		log = logger.Nop()
	}
	if host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"); host != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
	}
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	log.Info("gcs object reader ready", "emulator_host", cfg.EmulatorHost)
	return &objectReader{log: log.With("service", "GCSObjectReader"), client: client}, nil
}

func (r *objectReader) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	// The reader outlives this call; its context is cancelled when it is closed.
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	rd, err := r.client.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}
	return &readCloserWithCancel{ReadCloser: rd, cancel: cancel}, nil
}

func (r *objectReader) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	it := r.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (r *objectReader) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

// ParseURI splits gs://bucket/key. ok is false for anything that is not a gs URI.
func ParseURI(uri string) (bucket, key string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil || u.Scheme != "gs" || u.Host == "" {
		return "", "", false
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), true
}
