package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeShapes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"envelope", `{"records":[{"ocid":"a"},{"ocid":"b"}]}`, 2},
		{"array", `[{"ocid":"a"}]`, 1},
		{"empty", "  \n", 0},
		{"envelope without records", `{"other":1}`, 0},
	}
	for _, tc := range cases {
		recs, err := Decode([]byte(tc.in))
		if err != nil {
			t.Fatalf("%s: Decode: %v", tc.name, err)
		}
		if len(recs) != tc.want {
			t.Fatalf("%s: got %d records, want %d", tc.name, len(recs), tc.want)
		}
	}
	if _, err := Decode([]byte(`{"records":`)); err == nil {
		t.Fatalf("expected error for truncated json")
	}
}

func TestReadKeepsArgumentOrder(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, id := range []string{"first", "second", "third", "fourth", "fifth"} {
		body := `[{"ocid":"` + id + `-1"},{"ocid":"` + id + `-2"}]`
		if i%2 == 0 {
			body = `{"records":` + body + `}`
		}
		inputs = append(inputs, writeFile(t, dir, id+".json", body))
	}

	recs, err := New(nil, nil).Read(context.Background(), inputs)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 10 {
		t.Fatalf("got %d records, want 10", len(recs))
	}
	if recs[0]["ocid"] != "first-1" || recs[9]["ocid"] != "fifth-2" {
		t.Fatalf("order not preserved: first=%v last=%v", recs[0]["ocid"], recs[9]["ocid"])
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := New(nil, nil).Read(context.Background(), []string{filepath.Join(t.TempDir(), "nope.json")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestReadGSNeedsClient(t *testing.T) {
	if _, err := New(nil, nil).Read(context.Background(), []string{"gs://bucket/a.json"}); err == nil {
		t.Fatalf("expected error without storage client")
	}
}

type fakeObjects struct {
	objects map[string]string
}

func (f *fakeObjects) Open(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeObjects) List(_ context.Context, bucket, prefix string) ([]string, error) {
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, bucket+"/"+prefix) {
			out = append(out, strings.TrimPrefix(k, bucket+"/"))
		}
	}
	return out, nil
}

func (f *fakeObjects) Close() error { return nil }

func TestReadGSObjectAndPrefix(t *testing.T) {
	objs := &fakeObjects{objects: map[string]string{
		"raw/2024/a.json":    `[{"ocid":"a"}]`,
		"raw/2024/notes.txt": `ignored`,
		"raw/single.json":    `{"records":[{"ocid":"s"}]}`,
	}}
	recs, err := New(nil, objs).Read(context.Background(), []string{"gs://raw/single.json", "gs://raw/2024/"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(recs) != 2 || recs[0]["ocid"] != "s" || recs[1]["ocid"] != "a" {
		t.Fatalf("unexpected records: %v", recs)
	}
}
