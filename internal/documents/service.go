package documents

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firecost/internal/models"
	"firecost/internal/normalize"
	"firecost/internal/service/llm"
)

const DefaultUploadTTL = 24 * time.Hour

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file exceeds the 20MB limit")
	ErrNotFound        = errors.New("file not found")
	ErrNoText          = errors.New("document contains no readable text")
)

// Extractor turns one document into the model's raw JSON object.
type Extractor interface {
	Extract(ctx context.Context, req llm.ExtractRequest) ([]byte, error)
}

// ProcessResult is the outcome of analyzing one stored document.
type ProcessResult struct {
	Analysis models.Analysis    `json:"analysis"`
	FileInfo *models.StoredFile `json:"fileInfo"`
}

type Options struct {
	Dir            string
	PublicBasePath string
	TTL            time.Duration
}

// Service stores uploads on local disk and runs them through the extractor.
type Service struct {
	db         *sql.DB
	dir        string
	publicBase string
	ttl        time.Duration
	maxBytes   int64
	extractor  Extractor
	loader     *textLoader
	log        *zap.Logger
	now        func() time.Time
}

func NewService(ctx context.Context, db *sql.DB, extractor Extractor, opts Options, logger *zap.Logger) (*Service, error) {
	if db == nil {
		return nil, errors.New("database required")
	}
	if opts.Dir == "" {
		return nil, errors.New("upload directory required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	loader, err := newTextLoader(ctx)
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultUploadTTL
	}
	if opts.PublicBasePath == "" {
		opts.PublicBasePath = "/uploads"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         db,
		dir:        opts.Dir,
		publicBase: strings.TrimRight(opts.PublicBasePath, "/"),
		ttl:        opts.TTL,
		maxBytes:   MaxUploadBytes,
		extractor:  extractor,
		loader:     loader,
		log:        logger,
		now:        time.Now,
	}, nil
}

// Dir is the directory uploads are written to.
func (s *Service) Dir() string { return s.dir }

// PublicBasePath is the URL prefix uploads are served under.
func (s *Service) PublicBasePath() string { return s.publicBase }

// Upload validates and persists one document. size is the declared length
// and may be -1 when unknown.
func (s *Service) Upload(ctx context.Context, r io.Reader, filename, mimeType string, size int64) (*models.StoredFile, error) {
	if size > s.maxBytes {
		return nil, ErrTooLarge
	}
	br := bufio.NewReaderSize(r, 512)
	head, err := br.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(head) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrUnsupportedType)
	}
	original := sanitizeFileName(filename)
	contentType := resolveContentType(mimeType, original, head)
	if contentType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, firstNonEmpty(baseMediaType(mimeType), original))
	}

	dst, stored, err := s.createUnique(original)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	target := s.filePath(stored)
	written, err := io.Copy(dst, io.LimitReader(br, s.maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if written > s.maxBytes {
		_ = os.Remove(target)
		return nil, ErrTooLarge
	}

	now := s.now().UTC()
	file := &models.StoredFile{
		ID:           uuid.NewString(),
		OriginalName: original,
		StoredName:   stored,
		StoredPath:   target,
		URL:          s.publicBase + "/" + url.PathEscape(stored),
		MimeType:     contentType,
		Size:         written,
		Status:       models.UploadStatusSuccess,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO uploaded_files (id, original_name, stored_name, stored_path, url, mime_type, size, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		file.ID, file.OriginalName, file.StoredName, file.StoredPath, file.URL,
		file.MimeType, file.Size, string(file.Status), file.CreatedAt, file.ExpiresAt); err != nil {
		_ = os.Remove(target)
		return nil, fmt.Errorf("record upload: %w", err)
	}
	s.log.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("stored_name", stored),
		zap.String("mime_type", contentType),
		zap.Int64("size", written))
	return file, nil
}

// Get resolves a stored file by id, stored name or public URL.
func (s *Service) Get(ctx context.Context, ref string) (*models.StoredFile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}
	name := ref
	if strings.Contains(ref, "/") {
		name = path.Base(ref)
		if u, err := url.Parse(ref); err == nil {
			name = path.Base(u.Path)
		}
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, stored_name, stored_path, url, mime_type, size, status, created_at, expires_at
		FROM uploaded_files WHERE id = ? OR stored_name = ? LIMIT 1`, ref, name)

	var (
		file   models.StoredFile
		status string
	)
	if err := row.Scan(&file.ID, &file.OriginalName, &file.StoredName, &file.StoredPath, &file.URL,
		&file.MimeType, &file.Size, &status, &file.CreatedAt, &file.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query upload: %w", err)
	}
	file.Status = models.UploadStatus(status)
	return &file, nil
}

// Process extracts structured estimation data from a stored document.
func (s *Service) Process(ctx context.Context, ref, projectType string) (*ProcessResult, error) {
	if s.extractor == nil {
		return nil, errors.New("document extraction not configured")
	}
	file, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(file.StoredPath); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	req := llm.ExtractRequest{ProjectType: projectType, FileName: file.OriginalName}
	if isImage(file.MimeType) {
		data, err := os.ReadFile(file.StoredPath)
		if err != nil {
			return nil, fmt.Errorf("read upload: %w", err)
		}
		req.Image = data
		req.ImageMIME = file.MimeType
	} else {
		text, err := s.loader.Text(ctx, file.StoredPath)
		if err != nil {
			return nil, err
		}
		if text == "" {
			return nil, ErrNoText
		}
		req.Text = text
	}

	content, err := s.extractor.Extract(ctx, req)
	if err != nil {
		return nil, err
	}
	analysis, err := normalize.NormalizeJSON(content, normalize.Options{ProjectType: projectType})
	if err != nil {
		return nil, &llm.UpstreamError{Op: "decode", Body: string(content), Err: err}
	}
	if err := normalize.Validate(analysis); err != nil {
		s.log.Warn("normalized analysis failed schema validation", zap.String("file_id", file.ID), zap.Error(err))
	}
	if analysis.FallbackUsed {
		s.log.Warn("extraction returned no usable line items, default items substituted", zap.String("file_id", file.ID))
	}
	return &ProcessResult{Analysis: analysis, FileInfo: file}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
