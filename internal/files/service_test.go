package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type mockMetadata struct {
	files    map[uuid.UUID]*File
	statuses []Status
	failWith error
}

func newMockMetadata() *mockMetadata {
	return &mockMetadata{files: make(map[uuid.UUID]*File)}
}

func (m *mockMetadata) Create(ctx context.Context, f *File) error {
	if m.failWith != nil {
		return m.failWith
	}
	clone := *f
	m.files[f.ID] = &clone
	return nil
}

func (m *mockMetadata) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	f, ok := m.files[id]
	if !ok {
		return ErrNotFound
	}
	f.Status = status
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockMetadata) Get(ctx context.Context, id uuid.UUID) (*File, error) {
	f, ok := m.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *f
	return &clone, nil
}

func (m *mockMetadata) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.files[id]; !ok {
		return ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func (m *mockMetadata) List(ctx context.Context, scope string, limit, offset int) ([]File, error) {
	var out []File
	for _, f := range m.files {
		if f.AppIdentifier == scope {
			out = append(out, *f)
		}
	}
	return out, nil
}

// mockS3 keeps objects in memory behind the S3 client surface.
type mockS3 struct {
	objects map[string][]byte
	putErr  error

	deleted []string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*params.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := m.objects[*params.Key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", *params.Key)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.deleted = append(m.deleted, *params.Key)
	delete(m.objects, *params.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestFileService(repo *mockMetadata, client *mockS3) *Service {
	store := NewObjectStoreWithClient(client, "unifiedbase-files")
	return NewService(repo, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUploadStoresObjectAndCompletesMetadata(t *testing.T) {
	repo := newMockMetadata()
	client := newMockS3()
	svc := newTestFileService(repo, client)

	f, err := svc.Upload(context.Background(), UploadInput{
		AppIdentifier: "blog-app",
		Filename:      "report.pdf",
		Size:          11,
		ContentType:   "application/pdf",
		Body:          strings.NewReader("hello world"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if f.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", f.Status)
	}
	if f.Category != "document" {
		t.Fatalf("expected document category, got %s", f.Category)
	}
	if !strings.HasPrefix(f.StoragePath, "blog-app/") || !strings.HasSuffix(f.StoragePath, ".pdf") {
		t.Fatalf("unexpected storage key: %s", f.StoragePath)
	}
	if string(client.objects[f.StoragePath]) != "hello world" {
		t.Fatalf("object content not stored")
	}
}

func TestUploadFailureMarksMetadataFailed(t *testing.T) {
	repo := newMockMetadata()
	client := newMockS3()
	client.putErr = fmt.Errorf("connection refused")
	svc := newTestFileService(repo, client)

	_, err := svc.Upload(context.Background(), UploadInput{
		AppIdentifier: "blog-app",
		Filename:      "report.pdf",
		Body:          strings.NewReader("x"),
	})
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
	if len(repo.statuses) != 1 || repo.statuses[0] != StatusFailed {
		t.Fatalf("metadata must be marked failed, got %v", repo.statuses)
	}
}

func TestUploadRequiresScopeAndFilename(t *testing.T) {
	svc := newTestFileService(newMockMetadata(), newMockS3())
	ctx := context.Background()

	if _, err := svc.Upload(ctx, UploadInput{Filename: "a.txt", Body: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected an error without an app identifier")
	}
	if _, err := svc.Upload(ctx, UploadInput{AppIdentifier: "blog-app", Body: strings.NewReader("x")}); err == nil {
		t.Fatalf("expected an error without a filename")
	}
}

func TestOpenOnlyServesCompletedFiles(t *testing.T) {
	repo := newMockMetadata()
	client := newMockS3()
	svc := newTestFileService(repo, client)
	ctx := context.Background()

	f, err := svc.Upload(ctx, UploadInput{
		AppIdentifier: "blog-app",
		Filename:      "notes.txt",
		Body:          strings.NewReader("content"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	meta, body, err := svc.Open(ctx, f.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "content" {
		t.Fatalf("unexpected content: %q", data)
	}
	if meta.Filename != "notes.txt" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	// A file stuck in uploading is not served.
	if err := repo.SetStatus(ctx, f.ID, StatusUploading); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if _, _, err := svc.Open(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for incomplete file, got %v", err)
	}
}

func TestDeleteRemovesObjectAndMetadata(t *testing.T) {
	repo := newMockMetadata()
	client := newMockS3()
	svc := newTestFileService(repo, client)
	ctx := context.Background()

	f, err := svc.Upload(ctx, UploadInput{
		AppIdentifier: "blog-app",
		Filename:      "gone.txt",
		Body:          strings.NewReader("x"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if err := svc.Delete(ctx, f.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != f.StoragePath {
		t.Fatalf("object not deleted: %v", client.deleted)
	}
	if _, err := repo.Get(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("metadata must be gone, got %v", err)
	}
}

func TestCategorize(t *testing.T) {
	cases := map[string]string{
		"photo.JPG":    "image",
		"clip.mp4":     "video",
		"deck.pdf":     "document",
		"song.flac":    "audio",
		"archive.zip":  "archive",
		"unknown.bin":  "other",
		"no-extension": "other",
	}
	for name, want := range cases {
		if got := Categorize(name); got != want {
			t.Fatalf("Categorize(%q) = %s, want %s", name, got, want)
		}
	}
}
