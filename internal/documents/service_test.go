package documents

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"firecost/internal/config"
	"firecost/internal/service/llm"
	"firecost/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type fakeExtractor struct {
	reply []byte
	err   error
	got   []llm.ExtractRequest
}

func (f *fakeExtractor) Extract(_ context.Context, req llm.ExtractRequest) ([]byte, error) {
	f.got = append(f.got, req)
	return f.reply, f.err
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestService(t *testing.T, ex Extractor) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), newTestDB(t), ex, Options{Dir: t.TempDir()}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestUploadStoresFileAndRecord(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	body := "Fire alarm panel specification"

	file, err := svc.Upload(ctx, strings.NewReader(body), "spec.txt", "text/plain", int64(len(body)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.StoredName != "spec.txt" || file.URL != "/uploads/spec.txt" {
		t.Fatalf("unexpected stored file: %+v", file)
	}
	if file.MimeType != mimeTXT || file.Size != int64(len(body)) {
		t.Fatalf("unexpected metadata: %+v", file)
	}
	data, err := os.ReadFile(filepath.Join(svc.Dir(), "spec.txt"))
	if err != nil || string(data) != body {
		t.Fatalf("file content mismatch: %q %v", data, err)
	}

	byID, err := svc.Get(ctx, file.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if byID.StoredPath != file.StoredPath || byID.OriginalName != "spec.txt" {
		t.Fatalf("get mismatch: %+v", byID)
	}
	if _, err := svc.Get(ctx, "/uploads/spec.txt"); err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if _, err := svc.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUploadUsesUniqueNames(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	names := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		file, err := svc.Upload(ctx, strings.NewReader("notes"), "notes.txt", "text/plain", 5)
		if err != nil {
			t.Fatalf("upload %d: %v", i, err)
		}
		names = append(names, file.StoredName)
	}
	want := []string{"notes.txt", "notes (1).txt", "notes (2).txt"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestCreateUniqueUnderContention(t *testing.T) {
	svc := newTestService(t, nil)
	const writers = 16
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		names = map[string]bool{}
		errs  []error
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, name, err := svc.createUnique("plan.pdf")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			f.Close()
			names[name] = true
		}()
	}
	wg.Wait()
	if len(errs) > 0 {
		t.Fatalf("create failed: %v", errs)
	}
	if len(names) != writers || !names["plan.pdf"] || !names["plan (15).pdf"] {
		t.Fatalf("expected %d distinct names, got %v", writers, names)
	}
}

func TestUploadRejectsUnsupportedAndLarge(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.Upload(ctx, strings.NewReader("PK\x03\x04data"), "archive.zip", "application/zip", 10); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := svc.Upload(ctx, strings.NewReader("plain text"), "fake.png", "image/png", 10); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType for mismatched image, got %v", err)
	}
	if _, err := svc.Upload(ctx, strings.NewReader("x"), "big.pdf", "application/pdf", MaxUploadBytes+1); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge from declared size, got %v", err)
	}

	svc.maxBytes = 8
	if _, err := svc.Upload(ctx, strings.NewReader("0123456789"), "long.txt", "text/plain", -1); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge from stream, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(svc.Dir(), "long.txt")); !os.IsNotExist(err) {
		t.Fatalf("oversized upload should be removed, stat err %v", err)
	}
}

func TestUploadSniffedImageWins(t *testing.T) {
	svc := newTestService(t, nil)
	file, err := svc.Upload(context.Background(), bytes.NewReader(pngHeader), "plan.png", "text/plain", int64(len(pngHeader)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.MimeType != mimePNG {
		t.Fatalf("expected sniffed png, got %s", file.MimeType)
	}
}

func TestProcessTextDocument(t *testing.T) {
	ex := &fakeExtractor{reply: []byte(`{
		"vendors": [{"name": "Acme Fire", "confidence": 90}],
		"estimation_elements": [{"description": "Smoke detector", "quantity": 12, "unit_price": "$45.00"}]
	}`)}
	svc := newTestService(t, ex)
	ctx := context.Background()
	file, err := svc.Upload(ctx, strings.NewReader("Install 12 smoke detectors"), "scope.txt", "text/plain", 26)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	res, err := svc.Process(ctx, file.ID, "office")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(ex.got) != 1 || !strings.Contains(ex.got[0].Text, "smoke detectors") || ex.got[0].ProjectType != "office" {
		t.Fatalf("unexpected extractor request: %+v", ex.got)
	}
	if res.FileInfo.ID != file.ID {
		t.Fatalf("file info mismatch")
	}
	a := res.Analysis
	if a.FallbackUsed || len(a.EstimationElements) != 1 {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if el := a.EstimationElements[0]; el.Qty != 12 || el.UnitPrice != 45 {
		t.Fatalf("unexpected element: %+v", el)
	}
	if len(a.Vendors) != 1 || a.Vendors[0].Name != "Acme Fire" {
		t.Fatalf("unexpected vendors: %+v", a.Vendors)
	}
	if a.ProjectDetails.Type != "office" {
		t.Fatalf("project type not applied: %+v", a.ProjectDetails)
	}
}

func TestProcessImageSendsBytes(t *testing.T) {
	ex := &fakeExtractor{reply: []byte(`{}`)}
	svc := newTestService(t, ex)
	ctx := context.Background()
	file, err := svc.Upload(ctx, bytes.NewReader(pngHeader), "plan.png", "image/png", int64(len(pngHeader)))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	res, err := svc.Process(ctx, file.StoredName, "")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := ex.got[0]; !bytes.Equal(got.Image, pngHeader) || got.ImageMIME != mimePNG || got.Text != "" {
		t.Fatalf("unexpected image request: %+v", got)
	}
	if !res.Analysis.FallbackUsed {
		t.Fatalf("empty extraction should use fallback items")
	}
}

func TestProcessPropagatesUpstreamError(t *testing.T) {
	upstream := &llm.UpstreamError{Op: "generate", Body: "rate limited"}
	svc := newTestService(t, &fakeExtractor{err: upstream})
	ctx := context.Background()
	file, err := svc.Upload(ctx, strings.NewReader("scope"), "scope.txt", "text/plain", 5)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	_, err = svc.Process(ctx, file.ID, "")
	var ue *llm.UpstreamError
	if !errors.As(err, &ue) || ue.Body != "rate limited" {
		t.Fatalf("expected upstream error, got %v", err)
	}

	svc.extractor = &fakeExtractor{reply: []byte("not json")}
	_, err = svc.Process(ctx, file.ID, "")
	if !errors.As(err, &ue) || ue.Body != "not json" {
		t.Fatalf("expected decode upstream error, got %v", err)
	}
}

func TestProcessMissingFile(t *testing.T) {
	svc := newTestService(t, &fakeExtractor{})
	if _, err := svc.Process(context.Background(), "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanupExpiredUploads(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	file, err := svc.Upload(ctx, strings.NewReader("old"), "old.txt", "text/plain", 3)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	n, err := svc.cleanupExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("fresh upload should survive: n=%d err=%v", n, err)
	}

	svc.now = func() time.Time { return time.Now().Add(DefaultUploadTTL + time.Minute) }
	n, err = svc.cleanupExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one removal: n=%d err=%v", n, err)
	}
	if _, err := os.Stat(file.StoredPath); !os.IsNotExist(err) {
		t.Fatalf("file should be deleted, stat err %v", err)
	}
	if _, err := svc.Get(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record should be deleted, got %v", err)
	}
}

func TestDocxText(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Fire alarm</w:t></w:r><w:r><w:tab/><w:t>12 units</w:t></w:r></w:p>
<w:p><w:r><w:t>Sprinkler heads</w:t></w:r></w:p>
</w:body>
</w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	text, err := docxText(buf.Bytes())
	if err != nil {
		t.Fatalf("docx text: %v", err)
	}
	if text != "Fire alarm\t12 units\nSprinkler heads" {
		t.Fatalf("unexpected text %q", text)
	}

	if _, err := docxText([]byte("not a zip")); err == nil {
		t.Fatalf("expected error for invalid docx")
	}
}

func TestPrintableRuns(t *testing.T) {
	data := []byte("\x00\x01Scope of work\x00\xffab\x00Exit signs x4\x00")
	got := printableRuns(data, 4)
	if got != "Scope of work\nExit signs x4" {
		t.Fatalf("unexpected runs %q", got)
	}
}
