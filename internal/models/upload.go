package models

import "time"

type UploadStatus string

// The wizard also tracks "uploading" and "error" client side; stored files
// are always a success.
const UploadStatusSuccess UploadStatus = "success"

// UploadedFile is the wizard-facing view of an upload, kept in projectData.
type UploadedFile struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Size   int64        `json:"size"`
	Type   string       `json:"type"`
	URL    string       `json:"url"`
	Status UploadStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// StoredFile represents an uploaded document persisted on local storage.
type StoredFile struct {
	ID           string       `json:"id"`
	OriginalName string       `json:"originalName"`
	StoredName   string       `json:"storedName"`
	StoredPath   string       `json:"-"`
	URL          string       `json:"fileUrl"`
	MimeType     string       `json:"mimeType"`
	Size         int64        `json:"size"`
	Status       UploadStatus `json:"status"`
	CreatedAt    time.Time    `json:"createdAt"`
	ExpiresAt    time.Time    `json:"expiresAt"`
}

// AsUploadedFile converts the record into the wizard view.
func (f *StoredFile) AsUploadedFile() UploadedFile {
	return UploadedFile{
		ID:     f.ID,
		Name:   f.OriginalName,
		Size:   f.Size,
		Type:   f.MimeType,
		URL:    f.URL,
		Status: f.Status,
	}
}
