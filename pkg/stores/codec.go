package stores

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the collection envelope version written by this package.
const SchemaVersion = 1

// collectionEnvelope is the on-disk layout of the shared collection file.
// Unknown fields are ignored so newer writers can add to it.
type collectionEnvelope struct {
	SchemaVersion int            `json:"schemaVersion"`
	SavedAt       time.Time      `json:"savedAt,omitzero"`
	Records       []ReportRecord `json:"records"`
}

func encodeCollection(records []ReportRecord, now time.Time) ([]byte, error) {
	if records == nil {
		records = []ReportRecord{}
	}
	env := collectionEnvelope{
		SchemaVersion: SchemaVersion,
		SavedAt:       now.UTC(),
		Records:       records,
	}
	return json.MarshalIndent(env, "", "  ")
}

// decodeCollection accepts the versioned envelope and the legacy bare array.
func decodeCollection(data []byte) ([]ReportRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty file")
	}

	var records []ReportRecord
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode legacy collection: %w", err)
		}
	} else {
		var env collectionEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode collection: %w", err)
		}
		if env.SchemaVersion < 1 {
			return nil, errors.New("missing schemaVersion")
		}
		if env.SchemaVersion > SchemaVersion {
			return nil, fmt.Errorf("%w %d (max %d)", ErrUnsupportedSchema, env.SchemaVersion, SchemaVersion)
		}
		records = env.Records
	}

	if records == nil {
		records = []ReportRecord{}
	}
	for i := range records {
		if records[i].ID == "" {
			return nil, fmt.Errorf("record %d has no id", i)
		}
		if records[i].Fields == nil {
			records[i].Fields = Payload{}
		}
	}
	return records, nil
}

// countIs builds the post-write predicate for a collection of n records.
func countIs(n int) func([]byte) error {
	return func(data []byte) error {
		records, err := decodeCollection(data)
		if err != nil {
			return err
		}
		if len(records) != n {
			return fmt.Errorf("expected %d records, read back %d", n, len(records))
		}
		return nil
	}
}
