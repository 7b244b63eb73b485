package pcat

import (
	"errors"
	"fmt"

	"pcat-go/internal/model"
)

// LoadTable reads and decodes a table through s. When the table is
// corrupt it is recovered from the latest snapshot; recovered reports
// whether that happened so the caller can rewrite the primary copy.
func LoadTable[T any](s Store, logger Logger, table string, decode model.Decoder[T]) (recs []T, recovered bool, err error) {
	raw, err := s.ReadRecords(table)
	if err == nil {
		if recs, err = decodeAll(raw, decode); err == nil {
			return recs, false, nil
		}
	}
	if !errors.Is(err, ErrCorruptTable) {
		return nil, false, fmt.Errorf("reading table %s: %w", table, err)
	}

	logger.Warn("table unreadable, recovering from backup", "table", table, "error", err)
	raw, rerr := s.RecoverRecords(table)
	if rerr != nil {
		return nil, false, errors.Join(err, rerr)
	}
	if recs, err = decodeAll(raw, decode); err != nil {
		return nil, false, fmt.Errorf("recovered table %s: %w", table, err)
	}
	return recs, true, nil
}

// StoreTable encodes records and replaces the table through s.
func StoreTable[T any](s Store, table string, records []T, encode model.Encoder[T]) error {
	raw := make([][]byte, 0, len(records))
	for i, rec := range records {
		b, err := encode(rec)
		if err != nil {
			return fmt.Errorf("table %s record %d: %w", table, i, err)
		}
		raw = append(raw, b)
	}
	return s.WriteRecords(table, raw)
}

func decodeAll[T any](raw [][]byte, decode model.Decoder[T]) ([]T, error) {
	out := make([]T, 0, len(raw))
	for i, b := range raw {
		rec, err := decode(b)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w: %w", i, ErrCorruptTable, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
