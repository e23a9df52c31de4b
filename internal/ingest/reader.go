// Package ingest reads delimited species sheets into ordered raw rows.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/siftrapp/siftr-server/internal/domain"
	"github.com/siftrapp/siftr-server/internal/normalize"
)

// ErrNoHeader is returned when the input ends before the header row.
var ErrNoHeader = errors.New("missing header row")

const utf8BOM = "\uFEFF"

// Options controls how a sheet is read.
type Options struct {
	// Format is domain.FormatCSV or domain.FormatTSV. Empty means CSV for
	// Read and extension-based detection for ReadFile.
	Format string
	// HeaderRow is the number of banner rows preceding the header.
	HeaderRow int
}

// Read parses a delimited sheet into rows. Blank header cells are skipped,
// short records are padded with "" and cells beyond the header are ignored.
func Read(r io.Reader, opts Options) ([]normalize.Row, error) {
	if opts.HeaderRow < 0 {
		return nil, fmt.Errorf("header row %d: must not be negative", opts.HeaderRow)
	}

	reader := csv.NewReader(skipBOM(r))
	if opts.Format == domain.FormatTSV {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if len(records) <= opts.HeaderRow {
		return nil, ErrNoHeader
	}

	header := records[opts.HeaderRow]
	rows := make([]normalize.Row, 0, len(records)-opts.HeaderRow-1)
	for _, record := range records[opts.HeaderRow+1:] {
		if blankRecord(record) {
			continue
		}
		row := make(normalize.Row, 0, len(header))
		for i, h := range header {
			if strings.TrimSpace(h) == "" {
				continue
			}
			v := ""
			if i < len(record) {
				v = record[i]
			}
			row = append(row, normalize.Cell{Header: h, Value: v})
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile opens path and parses it with Read. When opts.Format is empty the
// format follows the file extension.
func ReadFile(path string, opts Options) ([]normalize.Row, error) {
	if opts.Format == "" {
		opts.Format = DetectFormat(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	rows, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// DetectFormat guesses the sheet format from a file name.
func DetectFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return domain.FormatTSV
	}
	return domain.FormatCSV
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
