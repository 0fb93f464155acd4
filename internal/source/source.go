// Package source reads the raw record files written by the ingestion collaborator.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/procurement-graph/internal/normalize"
	"github.com/yungbote/procurement-graph/internal/platform/gcp"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

const maxParallelReads = 4

// Reader resolves inputs to raw records. An input is a local file path, a gs://bucket/key
// object or a gs://bucket/prefix/ ending in a slash (every .json object under it).
type Reader struct {
	log     *logger.Logger
	objects gcp.ObjectReader
}

// New builds a Reader. objects may be nil when no gs:// input will be read.
func New(log *logger.Logger, objects gcp.ObjectReader) *Reader {
	if log == nil {
		log = logger.Nop()
	}
	return &Reader{log: log.With("component", "source"), objects: objects}
}

// Read loads every input concurrently and concatenates the records in argument order.
func (r *Reader) Read(ctx context.Context, inputs []string) ([]normalize.Raw, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("source: no inputs")
	}
	files, err := r.expand(ctx, inputs)
	if err != nil {
		return nil, err
	}

	parts := make([][]normalize.Raw, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, name := range files {
		i, name := i, name
		g.Go(func() error {
			recs, err := r.readOne(gctx, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			parts[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}
	out := make([]normalize.Raw, 0, total)
	for _, p := range parts {
		out = append(out, p...)
	}
	r.log.Info("records read", "files", len(files), "records", len(out))
	return out, nil
}

func (r *Reader) expand(ctx context.Context, inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		bucket, key, ok := gcp.ParseURI(in)
		if !ok || (key != "" && !strings.HasSuffix(key, "/")) {
			out = append(out, in)
			continue
		}
		if r.objects == nil {
			return nil, fmt.Errorf("source: %s needs a storage client", in)
		}
		keys, err := r.objects.List(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, k := range keys {
			if strings.HasSuffix(strings.ToLower(k), ".json") {
				out = append(out, "gs://"+bucket+"/"+k)
				n++
			}
		}
		if n == 0 {
			r.log.Warn("no json objects under prefix", "uri", in)
		}
	}
	return out, nil
}

func (r *Reader) readOne(ctx context.Context, name string) ([]normalize.Raw, error) {
	var rc io.ReadCloser
	if bucket, key, ok := gcp.ParseURI(name); ok {
		if r.objects == nil {
			return nil, fmt.Errorf("no storage client")
		}
		obj, err := r.objects.Open(ctx, bucket, key)
		if err != nil {
			return nil, err
		}
		rc = obj
	} else {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		rc = f
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

// Decode accepts either {"records": [...]} or a bare JSON array of records.
func Decode(raw []byte) ([]normalize.Raw, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var recs []normalize.Raw
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, fmt.Errorf("decode records array: %w", err)
		}
		return recs, nil
	}
	var env struct {
		Records []normalize.Raw `json:"records"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode records envelope: %w", err)
	}
	return env.Records, nil
}
