package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Table names for the record files in the store.
const (
	AssetsTable            = "assets"
	FoldersTable           = "folders"
	SyncDefinitionsTable   = "syncassetsdirectoriesdefinitions"
	RecentTargetPathsTable = "recenttargetpaths"
)

// Encoder converts a record to its persisted bytes. The result must not contain a newline.
type Encoder[T any] func(T) ([]byte, error)

// Decoder converts persisted bytes back to a record.
type Decoder[T any] func([]byte) (T, error)

type folderRecord struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// EncodeFolder encodes a folder record.
func EncodeFolder(f *Folder) ([]byte, error) {
	return json.Marshal(folderRecord{ID: f.ID, Path: f.Path})
}

// DecodeFolder decodes a folder record.
func DecodeFolder(b []byte) (*Folder, error) {
	var r folderRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decoding folder: %w", err)
	}
	if r.ID == "" || r.Path == "" {
		return nil, fmt.Errorf("decoding folder: missing id or path")
	}
	if !ValidFolderID(r.ID) {
		return nil, fmt.Errorf("decoding folder: invalid id %q", r.ID)
	}
	return &Folder{ID: r.ID, Path: r.Path}, nil
}

type assetRecord struct {
	FolderID         string        `json:"folder_id"`
	FileName         string        `json:"file_name"`
	Pixel            Pixels        `json:"pixel"`
	FileSize         int64         `json:"file_size"`
	FileCreated      time.Time     `json:"file_created"`
	FileModified     time.Time     `json:"file_modified"`
	ThumbnailCreated time.Time     `json:"thumbnail_created"`
	Rotation         Rotation      `json:"rotation"`
	Hash             string        `json:"hash"`
	Metadata         AssetMetadata `json:"metadata"`
}

// EncodeAsset encodes an asset record. The folder is stored by ID only.
func EncodeAsset(a *Asset) ([]byte, error) {
	folderID := a.FolderID
	if a.Folder != nil {
		folderID = a.Folder.ID
	}
	return json.Marshal(assetRecord{
		FolderID:         folderID,
		FileName:         a.FileName,
		Pixel:            a.Pixel,
		FileSize:         a.FileSize,
		FileCreated:      a.FileCreationDateTime,
		FileModified:     a.FileModificationDateTime,
		ThumbnailCreated: a.ThumbnailCreationDateTime,
		Rotation:         a.ImageRotation,
		Hash:             a.Hash,
		Metadata:         a.Metadata,
	})
}

// DecodeAsset decodes an asset record. The returned asset has FolderID set
// and Folder nil; the caller links it.
func DecodeAsset(b []byte) (*Asset, error) {
	var r assetRecord
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decoding asset: %w", err)
	}
	if r.FolderID == "" || r.FileName == "" {
		return nil, fmt.Errorf("decoding asset: missing folder_id or file_name")
	}
	return &Asset{
		FolderID:                  r.FolderID,
		FileName:                  r.FileName,
		Pixel:                     r.Pixel,
		FileSize:                  r.FileSize,
		FileCreationDateTime:      r.FileCreated,
		FileModificationDateTime:  r.FileModified,
		ThumbnailCreationDateTime: r.ThumbnailCreated,
		ImageRotation:             r.Rotation,
		Hash:                      r.Hash,
		Metadata:                  r.Metadata,
	}, nil
}

// EncodeSyncDefinition encodes a sync definition record.
func EncodeSyncDefinition(d SyncAssetsDirectoriesDefinition) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeSyncDefinition decodes a sync definition record.
func DecodeSyncDefinition(b []byte) (SyncAssetsDirectoriesDefinition, error) {
	var d SyncAssetsDirectoriesDefinition
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decoding sync definition: %w", err)
	}
	return d, nil
}

// EncodeRecentPath encodes a recent target path as a JSON string.
func EncodeRecentPath(p string) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeRecentPath decodes a recent target path.
func DecodeRecentPath(b []byte) (string, error) {
	var p string
	if err := json.Unmarshal(b, &p); err != nil {
		return "", fmt.Errorf("decoding recent path: %w", err)
	}
	return p, nil
}
