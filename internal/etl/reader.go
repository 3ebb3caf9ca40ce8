package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linnemanlabs/soporte/internal/support"
)

// ErrMalformedInput marks a bulk file that cannot be read as the expected
// semicolon-delimited tabular format. Per-row problems do not raise it;
// only a structurally unreadable file does.
var ErrMalformedInput = errors.New("malformed input")

// customerRow is one parsed line of the customers file. The file's own id
// column is kept only to resolve incident references within the same run;
// the store assigns its own ids. A non-integer id does not make the row
// unusable, it just never enters the id map.
type customerRow struct {
	FileID    int64
	HasFileID bool
	Name      string
	Email     string
	Phone     string
	Bad       string // non-empty when the row is unusable; holds the reason
}

// incidentRow is one parsed line of the incidents file.
type incidentRow struct {
	FileCustomerID int64
	Date           string
	Description    string
	Status         string
	Bad            string
}

var (
	customerHeader = []string{"id", "nombre", "email", "telefono"}
	incidentHeader = []string{"id", "id_cliente", "fecha", "descripcion", "estado"}
)

// newRowReader configures a csv.Reader for the semicolon-delimited bulk
// format. Field-count checking is disabled so short rows surface as per-row
// skips instead of failing the file.
func newRowReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	return cr
}

// readHeader consumes and validates the first record of a bulk file.
func readHeader(cr *csv.Reader, want []string) error {
	rec, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w: %w", ErrMalformedInput, err)
	}
	if len(rec) != len(want) {
		return fmt.Errorf("header has %d columns, want %d: %w", len(rec), len(want), ErrMalformedInput)
	}
	for i, col := range want {
		if !strings.EqualFold(strings.TrimSpace(rec[i]), col) {
			return fmt.Errorf("header column %d is %q, want %q: %w", i, rec[i], col, ErrMalformedInput)
		}
	}
	return nil
}

// readCustomerRows parses the customers file into rows. Unusable rows are
// returned with Bad set rather than dropped, so the pipeline can log them.
func readCustomerRows(r io.Reader) ([]customerRow, error) {
	cr := newRowReader(r)
	if err := readHeader(cr, customerHeader); err != nil {
		return nil, err
	}

	var rows []customerRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read customer row: %w: %w", ErrMalformedInput, err)
		}
		rows = append(rows, parseCustomerRow(rec))
	}
	return rows, nil
}

func parseCustomerRow(rec []string) customerRow {
	if len(rec) != len(customerHeader) {
		return customerRow{Bad: fmt.Sprintf("want %d fields, got %d", len(customerHeader), len(rec))}
	}
	row := customerRow{
		Name:  strings.TrimSpace(rec[1]),
		Email: strings.TrimSpace(rec[2]),
		Phone: strings.TrimSpace(rec[3]),
	}
	// The id column is accepted but not persisted; it only seeds the in-run
	// id map, so a bad id costs the mapping, not the row.
	if fileID, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64); err == nil {
		row.FileID = fileID
		row.HasFileID = true
	}
	if row.Name == "" {
		row.Bad = "missing name"
	} else if row.Email == "" {
		row.Bad = "missing email"
	}
	return row
}

// readIncidentRows parses the incidents file into rows.
func readIncidentRows(r io.Reader) ([]incidentRow, error) {
	cr := newRowReader(r)
	if err := readHeader(cr, incidentHeader); err != nil {
		return nil, err
	}

	var rows []incidentRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read incident row: %w: %w", ErrMalformedInput, err)
		}
		rows = append(rows, parseIncidentRow(rec))
	}
	return rows, nil
}

func parseIncidentRow(rec []string) incidentRow {
	if len(rec) != len(incidentHeader) {
		return incidentRow{Bad: fmt.Sprintf("want %d fields, got %d", len(incidentHeader), len(rec))}
	}
	fileCustomerID, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
	if err != nil {
		return incidentRow{Bad: fmt.Sprintf("id_cliente %q is not an integer", rec[1])}
	}
	row := incidentRow{
		FileCustomerID: fileCustomerID,
		Date:           strings.TrimSpace(rec[2]),
		Description:    strings.TrimSpace(rec[3]),
		Status:         strings.TrimSpace(rec[4]),
	}
	if row.Description == "" {
		row.Bad = "missing description"
	} else if len(row.Description) > support.MaxDescriptionLen {
		row.Bad = fmt.Sprintf("description longer than %d bytes", support.MaxDescriptionLen)
	}
	return row
}
