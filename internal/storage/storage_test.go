package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestDecodeUpgradesLegacySettings(t *testing.T) {
	legacy := []byte(`{"highlightsEnabled": false, "highlightColor": "#00ff00"}`)

	doc, err := Decode(legacy)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if doc.Version != CurrentVersion {
		t.Fatalf("expected version %d, got %d", CurrentVersion, doc.Version)
	}
	if doc.Settings.HighlightsEnabled {
		t.Fatalf("expected legacy highlightsEnabled=false to survive")
	}
	if doc.Settings.HighlightColor != "#00ff00" {
		t.Fatalf("expected legacy color, got %q", doc.Settings.HighlightColor)
	}
	if doc.Settings.MaxHighlights != 80 || doc.Settings.BacklinkLimit != 200 {
		t.Fatalf("expected defaults for missing fields, got %+v", doc.Settings)
	}
	if doc.Progress == nil || len(doc.Progress) != 0 {
		t.Fatalf("expected empty progress map, got %+v", doc.Progress)
	}
}

func TestDecodeMergesVersionedPayloadWithDefaults(t *testing.T) {
	payload := []byte(`{
		"version": 1,
		"settings": {"maxHighlights": 10},
		"progress": {
			"Books/Novel.epub": {"position": "epubcfi(/6/4!/4/2/1:0)", "updatedAt": 1700000000000},
			"Books/Manual.epub": {"position": 42, "updatedAt": 1700000000001}
		}
	}`)

	doc, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if doc.Settings.MaxHighlights != 10 {
		t.Fatalf("expected stored maxHighlights, got %d", doc.Settings.MaxHighlights)
	}
	if doc.Settings.ProgressDebounceMs != 500 || !doc.Settings.HighlightsEnabled {
		t.Fatalf("expected defaults for missing settings, got %+v", doc.Settings)
	}

	novel := doc.Progress["Books/Novel.epub"]
	if novel.Position.IsNumber() || novel.Position.String() != "epubcfi(/6/4!/4/2/1:0)" {
		t.Fatalf("unexpected string position %+v", novel)
	}
	manual := doc.Progress["Books/Manual.epub"]
	if !manual.Position.IsNumber() || manual.Position.Number() != 42 {
		t.Fatalf("unexpected numeric position %+v", manual)
	}
}

func TestDecodeCollapsesEquivalentKeys(t *testing.T) {
	payload := []byte(`{"version": 1, "progress": {
		"Books\\Novel.epub": {"position": 1, "updatedAt": 10},
		"Books/Novel.epub/": {"position": 2, "updatedAt": 20}
	}}`)

	doc, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(doc.Progress) != 1 {
		t.Fatalf("expected one record per normalized path, got %+v", doc.Progress)
	}
	if got := doc.Progress["Books/Novel.epub"].Position.Number(); got != 2 {
		t.Fatalf("expected newest record to win, got %v", got)
	}
}

func TestDecodeRejectsFutureVersion(t *testing.T) {
	if _, err := Decode([]byte(`{"version": 9}`)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid payload")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	doc := NewDocument()
	doc.Progress["a.epub"] = Record{Position: NumberPosition(12.5), UpdatedAt: 5}
	doc.Progress["b.epub"] = Record{Position: StringPosition("epubcfi(/6/2!/4/1:0)"), UpdatedAt: 6}

	data, err := Encode(doc)
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	if !strings.Contains(string(data), `"version": 1`) {
		t.Fatalf("expected version marker in %s", data)
	}
	if !strings.Contains(string(data), `"position": 12.5`) {
		t.Fatalf("expected numeric position to stay numeric in %s", data)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if decoded.Progress["a.epub"] != doc.Progress["a.epub"] || decoded.Progress["b.epub"] != doc.Progress["b.epub"] {
		t.Fatalf("round trip mismatch: %+v", decoded.Progress)
	}
}

func TestFileBackendMissingAndSave(t *testing.T) {
	dir := t.TempDir()
	backend := NewFileBackend(filepath.Join(dir, "nested", "state.json"))
	ctx := context.Background()

	doc, err := Load(ctx, backend)
	if err != nil {
		t.Fatalf("Load on missing file returned error: %v", err)
	}
	if doc.Version != CurrentVersion || len(doc.Progress) != 0 {
		t.Fatalf("expected fresh document, got %+v", doc)
	}

	doc.Progress["x.epub"] = Record{Position: NumberPosition(3), UpdatedAt: 1}
	if err := Save(ctx, backend, doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		t.Fatalf("expected only the state file after atomic write, got %v", entries)
	}

	loaded, err := Load(ctx, backend)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Progress["x.epub"].Position.Number() != 3 {
		t.Fatalf("unexpected loaded progress %+v", loaded.Progress)
	}
}

type fakeS3 struct {
	objects map[string][]byte
	putErr  error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3BackendRoundTrip(t *testing.T) {
	client := &fakeS3{objects: make(map[string][]byte)}
	backend := NewS3BackendWithClient(client, "bucket", "ebref/state.json")
	ctx := context.Background()

	doc, err := Load(ctx, backend)
	if err != nil {
		t.Fatalf("Load on missing object returned error: %v", err)
	}
	if len(doc.Progress) != 0 {
		t.Fatalf("expected fresh document, got %+v", doc)
	}

	doc.Progress["Books/Novel.epub"] = Record{Position: StringPosition("epubcfi(/6/2!/4/1:0)"), UpdatedAt: 7}
	if err := Save(ctx, backend, doc); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if _, ok := client.objects["bucket/ebref/state.json"]; !ok {
		t.Fatalf("expected object to be written, got keys %v", client.objects)
	}

	loaded, err := Load(ctx, backend)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Progress["Books/Novel.epub"] != doc.Progress["Books/Novel.epub"] {
		t.Fatalf("unexpected loaded progress %+v", loaded.Progress)
	}
}

func TestS3BackendSaveError(t *testing.T) {
	client := &fakeS3{objects: make(map[string][]byte), putErr: errors.New("access denied")}
	backend := NewS3BackendWithClient(client, "bucket", "state.json")

	if err := Save(context.Background(), backend, NewDocument()); err == nil {
		t.Fatalf("expected upload failure to surface")
	}
}

type failingBackend struct{}

func (failingBackend) Load(context.Context) ([]byte, error) { return nil, ErrNotFound }

func (failingBackend) Save(context.Context, []byte) error { return errors.New("disk full") }

func TestSaveWrapsBackendFailure(t *testing.T) {
	err := Save(context.Background(), failingBackend{}, NewDocument())
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
}
