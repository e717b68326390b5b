package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"schoolhub-backend/internal/models"
)

const (
	ColStudentCode = "student_code"
	ColFirstName   = "first_name"
	ColLastName    = "last_name"
	ColEmail       = "email"
	ColGradeLevel  = "grade_level"
	ColBirthDate   = "birth_date"
)

var requiredColumns = []string{ColStudentCode, ColFirstName, ColLastName}

var columnAliases = map[string]string{
	"student_code":  ColStudentCode,
	"code":          ColStudentCode,
	"student_id":    ColStudentCode,
	"student_no":    ColStudentCode,
	"first_name":    ColFirstName,
	"firstname":     ColFirstName,
	"given_name":    ColFirstName,
	"last_name":     ColLastName,
	"lastname":      ColLastName,
	"surname":       ColLastName,
	"family_name":   ColLastName,
	"email":         ColEmail,
	"e_mail":        ColEmail,
	"grade_level":   ColGradeLevel,
	"grade":         ColGradeLevel,
	"birth_date":    ColBirthDate,
	"birthdate":     ColBirthDate,
	"date_of_birth": ColBirthDate,
	"dob":           ColBirthDate,
}

type RosterParser struct{}

func NewRosterParser() *RosterParser {
	return &RosterParser{}
}

// Parse reads every data row of a roster file. Any error it returns is a
// *JobFatalError.
func (p *RosterParser) Parse(filename string, r io.Reader) ([]models.RosterRow, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var records [][]string
	var err error
	switch ext {
	case ".csv":
		records, err = p.readCSV(r)
	case ".xlsx":
		records, err = p.readXLSX(r)
	default:
		return nil, &JobFatalError{Message: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	return buildRows(records)
}

func (p *RosterParser) readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, &JobFatalError{Message: "unreadable CSV file", Err: err}
	}
	return records, nil
}

func (p *RosterParser) readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &JobFatalError{Message: "unreadable spreadsheet", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &JobFatalError{Message: "spreadsheet has no sheets"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &JobFatalError{Message: "unreadable spreadsheet", Err: err}
	}
	return rows, nil
}

func buildRows(records [][]string) ([]models.RosterRow, error) {
	if len(records) == 0 {
		return nil, &JobFatalError{Message: "file is empty"}
	}

	index := make(map[string]int)
	for i, h := range records[0] {
		if canonical, ok := columnAliases[normalizeHeader(h)]; ok {
			if _, dup := index[canonical]; !dup {
				index[canonical] = i
			}
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &JobFatalError{Message: "missing required columns: " + strings.Join(missing, ", ")}
	}

	var rows []models.RosterRow
	for i, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		fields := make(map[string]string, len(index))
		for col, idx := range index {
			if idx < len(rec) {
				fields[col] = strings.TrimSpace(rec[idx])
			}
		}
		// +2: one for the header, one for 1-based numbering
		rows = append(rows, models.RosterRow{Line: i + 2, Fields: fields})
	}

	if len(rows) == 0 {
		return nil, &JobFatalError{Message: "file contains no student rows"}
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
