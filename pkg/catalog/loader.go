// Package catalog loads the canonical WBS reference catalog from delimited files
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/andestx/rubromatch/pkg/models"
	"github.com/andestx/rubromatch/pkg/normalizers"
	"github.com/andestx/rubromatch/pkg/tracing"
)

// Options configures how catalog files are parsed
type Options struct {
	// Delimiter overrides auto-detection (comma, semicolon or tab by
	// file extension and header sniffing).
	Delimiter rune

	// Column names, matched case-insensitively against the header.
	IDColumn          string
	CodeColumn        string
	DescriptionColumn string
	UnitColumn        string
	CategoryColumn    string
}

// DefaultOptions returns the column names used by the standard catalog export
func DefaultOptions() Options {
	return Options{
		IDColumn:          "id",
		CodeColumn:        "codigo",
		DescriptionColumn: "descripcion",
		UnitColumn:        "unidad",
		CategoryColumn:    "categoria",
	}
}

// RowError reports a recoverable problem with a single catalog row
type RowError struct {
	Row     int
	Message string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Loader parses reference catalogs
type Loader struct {
	logger ectologger.Logger
}

// NewLoader creates a catalog loader
func NewLoader(logger ectologger.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadFile loads a catalog from a delimited file. Row-local problems are
// collected as RowErrors and the row skipped; structural problems
// (unreadable file, missing required columns) abort the load.
func (l *Loader) LoadFile(ctx context.Context, path string, opts Options) ([]models.ReferenceRubro, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()

	if opts.Delimiter == 0 {
		opts.Delimiter = detectDelimiter(path)
	}
	return l.Load(ctx, f, opts)
}

// Load loads a catalog from a reader
func (l *Loader) Load(ctx context.Context, r io.Reader, opts Options) ([]models.ReferenceRubro, []RowError, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.Loader.Load")
	defer span.End()

	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = opts.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog header: %w", err)
	}

	cols, err := mapColumns(header, opts)
	if err != nil {
		return nil, nil, err
	}

	var refs []models.ReferenceRubro
	var rowErrs []RowError

	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: err.Error()})
			continue
		}
		if len(record) != len(header) {
			rowErrs = append(rowErrs, RowError{Row: row, Message: fmt.Sprintf("expected %d fields, got %d", len(header), len(record))})
			continue
		}

		ref, rerr := buildReference(record, header, cols)
		if rerr != nil {
			rowErrs = append(rowErrs, RowError{Row: row, Message: rerr.Error()})
			continue
		}
		refs = append(refs, ref)
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"loaded":  len(refs),
		"skipped": len(rowErrs),
	}).Info("Loaded reference catalog")

	if len(refs) == 0 {
		return nil, rowErrs, fmt.Errorf("catalog contains no valid rows (%d rows skipped)", len(rowErrs))
	}
	return refs, rowErrs, nil
}

// columnIndexes locates the mapped columns inside the header
type columnIndexes struct {
	id          int
	code        int
	description int
	unit        int
	category    int
}

// mapColumns resolves configured column names to header positions.
// Description is required; code is required unless an id column exists
// that can stand in for identity.
func mapColumns(header []string, opts Options) (columnIndexes, error) {
	find := func(name string) int {
		if name == "" {
			return -1
		}
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}

	cols := columnIndexes{
		id:          find(opts.IDColumn),
		code:        find(opts.CodeColumn),
		description: find(opts.DescriptionColumn),
		unit:        find(opts.UnitColumn),
		category:    find(opts.CategoryColumn),
	}

	if cols.description == -1 {
		return cols, fmt.Errorf("catalog header is missing required column %q", opts.DescriptionColumn)
	}
	if cols.code == -1 {
		return cols, fmt.Errorf("catalog header is missing required column %q", opts.CodeColumn)
	}
	return cols, nil
}

// buildReference converts one record to a ReferenceRubro, collecting
// unmapped columns as opaque metadata
func buildReference(record, header []string, cols columnIndexes) (models.ReferenceRubro, error) {
	description := strings.TrimSpace(record[cols.description])
	if description == "" {
		return models.ReferenceRubro{}, fmt.Errorf("empty description")
	}

	rawCode := strings.TrimSpace(record[cols.code])
	code := normalizers.NormalizeCode(rawCode)
	if rawCode != "" && code == "" {
		return models.ReferenceRubro{}, fmt.Errorf("unparseable code %q", rawCode)
	}

	ref := models.ReferenceRubro{
		WBSCode:     code,
		Description: description,
	}

	if cols.id >= 0 && strings.TrimSpace(record[cols.id]) != "" {
		ref.ID = strings.TrimSpace(record[cols.id])
	} else {
		ref.ID = uuid.NewString()
	}
	if cols.unit >= 0 {
		ref.Unit = normalizers.NormalizeUnit(record[cols.unit])
	}
	if cols.category >= 0 {
		ref.Category = strings.TrimSpace(record[cols.category])
	}

	for i, h := range header {
		if i == cols.id || i == cols.code || i == cols.description || i == cols.unit || i == cols.category {
			continue
		}
		value := strings.TrimSpace(record[i])
		if value == "" {
			continue
		}
		if ref.Metadata == nil {
			ref.Metadata = make(map[string]string)
		}
		ref.Metadata[strings.TrimSpace(h)] = value
	}

	return ref, nil
}

// detectDelimiter guesses the delimiter from the file extension
func detectDelimiter(path string) rune {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return '\t'
	case ".ssv":
		return ';'
	default:
		return ','
	}
}
