package database

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"pcat-go/internal/pcat"
)

// blobMagic opens every thumbnail blob.
var blobMagic = [4]byte{'P', 'C', 'B', '1'}

// EncodeBlob writes entries as a thumbnail blob:
//
//	magic "PCB1"
//	uint32 entry count
//	per entry, in name order: uint16 name length, name, uint32 payload length, payload
//
// All integers are big endian.
func EncodeBlob(w io.Writer, entries map[string][]byte) error {
	names := make([]string, 0, len(entries))
	for name := range entries {
		if len(name) > math.MaxUint16 {
			return fmt.Errorf("blob entry name too long: %d bytes", len(name))
		}
		if int64(len(entries[name])) > math.MaxUint32 {
			return fmt.Errorf("blob entry %q too large: %d bytes", name, len(entries[name]))
		}
		names = append(names, name)
	}
	slices.Sort(names)

	if _, err := w.Write(blobMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		payload := entries[name]
		if err := binary.Write(w, binary.BigEndian, uint16(len(name))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlob parses a thumbnail blob. Truncation, trailing bytes, a bad
// magic or duplicate names all fail with ErrCorruptBlob.
func DecodeBlob(data []byte) (map[string][]byte, error) {
	r := bytes.NewReader(data)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, corrupt("reading magic", err)
	}
	if magic != blobMagic {
		return nil, corrupt("bad magic", nil)
	}
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, corrupt("reading count", err)
	}
	// Each entry takes at least six bytes.
	if int64(count)*6 > int64(r.Len()) {
		return nil, corrupt(fmt.Sprintf("count %d exceeds data", count), nil)
	}

	entries := make(map[string][]byte, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(r, binary.BigEndian, &nameLen); err != nil {
			return nil, corrupt("reading name length", err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, corrupt("reading name", err)
		}
		var size uint32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, corrupt("reading payload length", err)
		}
		if int64(size) > int64(r.Len()) {
			return nil, corrupt(fmt.Sprintf("entry %q truncated", name), nil)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, corrupt("reading payload", err)
		}
		if _, dup := entries[string(name)]; dup {
			return nil, corrupt(fmt.Sprintf("duplicate entry %q", name), nil)
		}
		entries[string(name)] = payload
	}
	if r.Len() != 0 {
		return nil, corrupt(fmt.Sprintf("%d trailing bytes", r.Len()), nil)
	}
	return entries, nil
}

func corrupt(msg string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", msg, pcat.ErrCorruptBlob, err)
	}
	return fmt.Errorf("%s: %w", msg, pcat.ErrCorruptBlob)
}

// readBlobFile reads and decodes a blob. A missing file yields an empty map.
func readBlobFile(path string) (map[string][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", path, err)
	}
	entries, err := DecodeBlob(data)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", path, err)
	}
	return entries, nil
}

func writeBlobFile(path string, entries map[string][]byte) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		if err := EncodeBlob(w, entries); err != nil {
			return fmt.Errorf("failed to encode blob: %w", err)
		}
		return nil
	})
}

func deleteBlobFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", path, err)
	}
	return nil
}
