package documents

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	MaxUploadBytes = 20 << 20 // 20 MB

	mimePNG  = "image/png"
	mimeJPEG = "image/jpeg"
	mimePDF  = "application/pdf"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeTXT  = "text/plain"
)

var allowedContentTypes = map[string]struct{}{
	mimePNG:  {},
	mimeJPEG: {},
	mimePDF:  {},
	mimeDOC:  {},
	mimeDOCX: {},
	mimeTXT:  {},
}

var extensionTypes = map[string]string{
	".png":  mimePNG,
	".jpg":  mimeJPEG,
	".jpeg": mimeJPEG,
	".pdf":  mimePDF,
	".doc":  mimeDOC,
	".docx": mimeDOCX,
	".txt":  mimeTXT,
}

func baseMediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

func isImage(ct string) bool {
	return ct == mimePNG || ct == mimeJPEG
}

// resolveContentType reconciles the declared type, the filename extension and
// the sniffed bytes. It returns "" when the upload is not acceptable.
func resolveContentType(declared, filename string, head []byte) string {
	declared = baseMediaType(declared)
	if declared == "" || declared == "application/octet-stream" {
		declared = extensionTypes[strings.ToLower(filepath.Ext(filename))]
	}
	sniffed := baseMediaType(http.DetectContentType(head))

	switch {
	case isImage(sniffed) || sniffed == mimePDF:
		// binary signatures are authoritative
		if _, ok := allowedContentTypes[sniffed]; ok {
			return sniffed
		}
		return ""
	case isImage(declared) || declared == mimePDF:
		// claimed image/pdf without the signature
		return ""
	}
	if _, ok := allowedContentTypes[declared]; !ok {
		return ""
	}
	if declared == mimeTXT && sniffed != mimeTXT {
		return ""
	}
	return declared
}

func (s *Service) filePath(filename string) string {
	return filepath.Join(s.dir, filename)
}

// createUnique opens a new file under the upload directory, moving on to the
// next "name (n).ext" candidate whenever one is already taken.
func (s *Service) createUnique(filename string) (*os.File, string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	candidate := filename
	for idx := 1; ; idx++ {
		f, err := os.OpenFile(s.filePath(candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
		if idx > 1000 {
			candidate = fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext)
			continue
		}
		candidate = fmt.Sprintf("%s (%d)%s", base, idx, ext)
	}
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}
