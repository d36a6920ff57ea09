package models

import "time"

// MediaKind classifies an uploaded asset.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaDocument MediaKind = "document"
)

// Valid reports whether k names a known media kind.
func (k MediaKind) Valid() bool { return k == MediaImage || k == MediaDocument }

// Dir is the uploads subdirectory holding assets of this kind.
func (k MediaKind) Dir() string {
	if k == MediaDocument {
		return "documents"
	}
	return "images"
}

// MediaAsset is the sidecar metadata of an uploaded file.
type MediaAsset struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Kind      MediaKind `json:"kind"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mimeType"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	Alt       string    `json:"alt,omitempty"`
	Caption   string    `json:"caption,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MediaReference names one content item pointing at an asset.
type MediaReference struct {
	Type   Kind     `json:"type"`
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Slug   string   `json:"slug"`
	Fields []string `json:"fields"`
}
