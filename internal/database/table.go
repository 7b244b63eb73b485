package database

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"pcat-go/internal/pcat"
)

const maxRecordSize = 16 << 20

// tableHeader is the first line of every record file.
type tableHeader struct {
	Table   string `json:"table"`
	Version string `json:"version"`
	Count   int    `json:"count"`
}

// readRecordFile returns the raw record lines of a table file after
// checking its header against name.
func readRecordFile(path, name string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open table file %s: %w", path, err)
	}
	defer f.Close()
	return readRecords(f, name)
}

func readRecords(r io.Reader, name string) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", name, err)
		}
		// An empty file is a table that was never written.
		return nil, nil
	}
	var hdr tableHeader
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
		return nil, fmt.Errorf("table %s header: %w: %w", name, pcat.ErrCorruptTable, err)
	}
	if hdr.Table != name {
		return nil, fmt.Errorf("table %s header names %q: %w", name, hdr.Table, pcat.ErrCorruptTable)
	}

	var raw [][]byte
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raw = append(raw, bytes.Clone(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table %s: %w", name, err)
	}
	if len(raw) != hdr.Count {
		return nil, fmt.Errorf("table %s has %d records, header says %d: %w", name, len(raw), hdr.Count, pcat.ErrCorruptTable)
	}
	return raw, nil
}

func writeRecordFile(path string, hdr tableHeader, raw [][]byte) error {
	h, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		if _, err := w.Write(append(h, '\n')); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		for _, line := range raw {
			if _, err := w.Write(line); err != nil {
				return fmt.Errorf("failed to write record: %w", err)
			}
			if _, err := w.Write([]byte{'\n'}); err != nil {
				return fmt.Errorf("failed to write newline: %w", err)
			}
		}
		return nil
	})
}
