package model

import (
	"image"
	"path/filepath"
	"strings"
	"time"
)

// Rotation is the clockwise rotation, in degrees, applied when displaying an image.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// PixelSize is a width/height pair in pixels.
type PixelSize struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Pixels holds the dimensions of the original image and of its thumbnail.
type Pixels struct {
	Asset     PixelSize `json:"asset"`
	Thumbnail PixelSize `json:"thumb"`
}

// Diagnostic is a boolean flag with an optional explanation.
type Diagnostic struct {
	IsTrue  bool   `json:"is_true"`
	Message string `json:"message,omitempty"`
}

// AssetMetadata carries the diagnostic flags recorded when an asset was catalogued.
type AssetMetadata struct {
	Corrupted Diagnostic `json:"corrupted"`
	Rotated   Diagnostic `json:"rotated"`
}

// Folder is a catalogued directory. ID is stable for the lifetime of the
// catalog and names the folder's thumbnail blob.
type Folder struct {
	ID   string
	Path string
}

// ValidFolderID reports whether id can name a thumbnail blob: it must be
// non-empty and hold no path separator or dot segment.
func ValidFolderID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, "/\\\x00")
}

// ThumbnailsFilename returns the blob name holding this folder's thumbnails.
func (f *Folder) ThumbnailsFilename() string {
	return f.ID + ".bin"
}

// Asset is a catalogued image file. Identity is (Folder.Path, FileName).
type Asset struct {
	FolderID                  string
	Folder                    *Folder
	FileName                  string
	Pixel                     Pixels
	FileSize                  int64
	FileCreationDateTime      time.Time
	FileModificationDateTime  time.Time
	ThumbnailCreationDateTime time.Time
	ImageRotation             Rotation
	Hash                      string
	Metadata                  AssetMetadata

	// ImageData is a decoded thumbnail attached for display. Never persisted.
	ImageData image.Image
}

// FullPath returns the absolute path of the asset's file.
func (a *Asset) FullPath() string {
	if a.Folder == nil {
		return a.FileName
	}
	return filepath.Join(a.Folder.Path, a.FileName)
}

// Clone returns a shallow copy of the asset. The Folder pointer is shared.
func (a *Asset) Clone() *Asset {
	c := *a
	return &c
}

// BackupRecord describes one snapshot held in the backup vault.
type BackupRecord struct {
	ID        string
	Object    string // object name in the vault
	CreatedAt time.Time
	Files     int
	Size      int64
	Checksum  string // SHA-256 of the stored object
	Encrypted bool
	Reason    string
}
