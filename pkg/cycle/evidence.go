package cycle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/certspin/reelcore/pkg/audit"
)

var (
	// ErrInvalidTimeRange is returned when an export window starts after it
	// ends.
	ErrInvalidTimeRange = errors.New("cycle: export start must be before end")
	// ErrSourceNotConfigured is returned when export is invoked without a
	// backing record source.
	ErrSourceNotConfigured = errors.New("cycle: record source not configured (fail-closed)")
)

// ExportRequest selects the records for an evidence pack. A zero field
// means unbounded: empty EngineCode exports every engine, zero times export
// the full history.
type ExportRequest struct {
	EngineCode string    `json:"engine_code,omitempty"`
	Start      time.Time `json:"start,omitempty"`
	End        time.Time `json:"end,omitempty"`
}

// RecordSource lists committed records for export. MemorySink implements
// it.
type RecordSource interface {
	Records() []Record
}

// Exporter builds regulator evidence packs: a zip holding the selected
// records, each trail's exact canonical bytes as its own file, and a
// manifest with per-file checksums. The regulator hashes the canonical
// files with their own tooling and compares against the recorded hashes
// without trusting this code.
type Exporter struct {
	source RecordSource
}

// NewExporter wires an exporter to a record source.
func NewExporter(source RecordSource) *Exporter {
	return &Exporter{source: source}
}

type packFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// GeneratePack builds the zip for req and returns it with the hex SHA-256
// checksum of the zip bytes.
func (e *Exporter) GeneratePack(_ context.Context, req ExportRequest) ([]byte, string, error) {
	if e == nil || e.source == nil {
		return nil, "", ErrSourceNotConfigured
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.Start.After(req.End) {
		return nil, "", ErrInvalidTimeRange
	}

	var selected []Record
	for _, rec := range e.source.Records() {
		if req.EngineCode != "" && rec.Engine.Code != req.EngineCode {
			continue
		}
		if !req.Start.IsZero() && rec.At.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && rec.At.After(req.End) {
			continue
		}
		selected = append(selected, rec)
	}

	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	var files []packFile

	add := func(name string, data []byte) error {
		f, err := w.Create(name)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			return err
		}
		files = append(files, packFile{Name: name, SHA256: audit.HashBytes(data), Size: len(data)})
		return nil
	}

	recordsJSON, err := json.MarshalIndent(selected, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("cycle: marshal records: %w", err)
	}
	if err := add("records.json", recordsJSON); err != nil {
		return nil, "", err
	}
	for _, rec := range selected {
		if err := add("canonical/"+rec.ID+".json", []byte(rec.Canonical)); err != nil {
			return nil, "", err
		}
	}

	manifest := map[string]any{
		"engine_code":  req.EngineCode,
		"generated_at": time.Now().UTC(),
		"record_count": len(selected),
		"period": map[string]any{
			"start": req.Start,
			"end":   req.End,
		},
		"files": files,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("cycle: marshal manifest: %w", err)
	}
	f, err := w.Create("manifest.json")
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Write(manifestJSON); err != nil {
		return nil, "", err
	}

	f, err = w.Create("README.txt")
	if err != nil {
		return nil, "", err
	}
	fmt.Fprintf(f, "Cycle evidence pack\nRecords: %d\nGenerated at %s\n\nEach file under canonical/ holds the exact canonical trail bytes of one\ncycle; its SHA-256 must equal the hash field of that record in\nrecords.json.\n", len(selected), time.Now().UTC().Format(time.RFC3339))

	if err := w.Close(); err != nil {
		return nil, "", err
	}

	zipBytes := buf.Bytes()
	return zipBytes, audit.HashBytes(zipBytes), nil
}
