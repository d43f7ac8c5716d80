// Package source reads canonical extracts from local files.
//
// CSV, YAML and JSON are supported. CSV extracts get encoding detection and
// header inference so that registry exports can be used as they are.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"gopkg.in/yaml.v3"

	"github.com/roach88/roster/internal/directory"
	"github.com/roach88/roster/internal/model"
)

// Format names a file format.
type Format string

const (
	FormatAuto Format = ""
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// File is a directory.Source backed by one file. The file is re-read on
// every fetch.
type File struct {
	path     string
	format   Format
	fallback encoding.Encoding
	columns  map[string]string
}

// Option configures a File source.
type Option func(*File)

// WithFormat forces the format instead of inferring it from the extension.
func WithFormat(f Format) Option {
	return func(s *File) { s.format = f }
}

// WithFallback sets the charset for CSV files that are not UTF-8.
func WithFallback(enc encoding.Encoding) Option {
	return func(s *File) {
		if enc != nil {
			s.fallback = enc
		}
	}
}

// WithColumns overrides inferred CSV header mappings (header -> column).
func WithColumns(columns map[string]string) Option {
	return func(s *File) { s.columns = columns }
}

// NewFile creates a File source.
func NewFile(path string, opts ...Option) *File {
	s := &File{path: path, fallback: DefaultFallback}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file path.
func (s *File) Path() string { return s.path }

// FetchCanonical implements directory.Source.
func (s *File) FetchCanonical(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, directory.NewError(directory.KindSourceUnavailable, directory.OpFetch, s.path, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, directory.NewError(directory.KindSourceUnavailable, directory.OpFetch, s.path, err)
	}

	var records []model.RawRecord
	switch s.detectFormat() {
	case FormatCSV:
		records, err = s.parseCSV(data)
	case FormatYAML:
		err = yaml.Unmarshal(data, &records)
	case FormatJSON:
		err = json.Unmarshal(data, &records)
	default:
		err = fmt.Errorf("unsupported format %q", s.format)
	}
	if err != nil {
		return nil, directory.NewError(directory.KindSourceUnavailable, directory.OpFetch, s.path, err)
	}

	slog.Debug("canonical extract loaded", "path", s.path, "records", len(records))
	return records, nil
}

func (s *File) detectFormat() Format {
	if s.format != FormatAuto {
		return s.format
	}
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return Format(strings.TrimPrefix(filepath.Ext(s.path), "."))
}

// parseCSV decodes data and maps each row through the header mappings.
// Rows with a parse error are skipped with a warning; a missing header row
// or a header without an external id column is an error.
func (s *File) parseCSV(data []byte) ([]model.RawRecord, error) {
	decoded, enc, err := Decode(data, s.fallback)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(decoded))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.Comma = sniffDelimiter(decoded)

	headers, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: no header row found")
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	columns := s.columns
	if columns == nil {
		columns = InferMappings(headers)
	}
	hasID := false
	for _, c := range columns {
		hasID = hasID || c == ColExternalID
	}
	if !hasID {
		return nil, fmt.Errorf("no external id column among headers %q", headers)
	}

	slog.Debug("csv extract decoded", "path", s.path, "encoding", enc, "columns", len(columns))

	var records []model.RawRecord
	row := 1
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			slog.Warn("csv row skipped", "path", s.path, "row", row, "error", err)
			continue
		}
		if isBlank(fields) {
			continue
		}

		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(fields) {
				if col, ok := columns[h]; ok {
					values[col] = fields[i]
				}
			}
		}
		records = append(records, recordFrom(values))
	}
	return records, nil
}

// recordFrom assembles a RawRecord from column values.
func recordFrom(v map[string]string) model.RawRecord {
	rec := model.RawRecord{
		ExternalID: v[ColExternalID],
		FullName:   v[ColFullName],
		Phone:      v[ColPhone],
		Email:      v[ColEmail],
		GroupKey:   v[ColGroupKey],
		Status:     v[ColStatus],
	}
	if id := strings.TrimSpace(v[ColCounterpartID]); id != "" {
		rec.Relationship = &model.RawRelationship{
			CounterpartID:    id,
			Organization:     parseBool(v[ColOrganization]),
			CounterpartPhone: v[ColCounterpartPhone],
			CounterpartEmail: v[ColCounterpartEmail],
		}
	}
	for col, val := range v {
		if name, ok := strings.CutPrefix(col, secretPrefix); ok {
			if rec.Secrets == nil {
				rec.Secrets = make(map[string]string)
			}
			rec.Secrets[name] = val
		}
	}
	return rec
}

// sniffDelimiter picks ';' or tab over ',' when the header row says so.
// Spreadsheet exports in ru locales use ';'.
func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	best, count := ',', bytes.Count(line, []byte(","))
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > count {
			best, count = d, n
		}
	}
	return best
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s == "yes" || s == "y" || s == "да"
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
