package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRosterParser_CSVAliasesAndBlankRows(t *testing.T) {
	csv := "\ufeffStudent-ID, Given Name ,Surname,DOB\nS1,Sara,Ahmadi,2014-03-02\n,,,\nS2,\"Reza, Jr\",Karimi,\n"

	rows, err := NewRosterParser().Parse("ROSTER.CSV", strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "S1", rows[0].Get(ColStudentCode))
	assert.Equal(t, "2014-03-02", rows[0].Get(ColBirthDate))
	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "Reza, Jr", rows[1].Get(ColFirstName))
}

func TestRosterParser_XLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"student_code", "first_name", "last_name", "grade"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"S1", "Mina", "Rahimi", 8}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"S2", "Kian", "Rostami", 9}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := NewRosterParser().Parse("class-8.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Mina", rows[0].Get(ColFirstName))
	assert.Equal(t, "9", rows[1].Get(ColGradeLevel))
}

func TestRosterParser_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     string
	}{
		{"unsupported type", "roster.pdf", "whatever", "unsupported file type"},
		{"empty file", "roster.csv", "", "file is empty"},
		{"header only", "roster.csv", "student_code,first_name,last_name\n", "no student rows"},
		{"missing columns", "roster.csv", "first_name\nSara\n", "missing required columns: last_name, student_code"},
		{"broken csv", "roster.csv", "student_code,first_name,last_name\n\"S1,Sara", "unreadable CSV"},
		{"not a workbook", "roster.xlsx", "plain text", "unreadable spreadsheet"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRosterParser().Parse(tc.filename, strings.NewReader(tc.content))
			var fatal *JobFatalError
			require.True(t, errors.As(err, &fatal), "expected JobFatalError, got %v", err)
			assert.Contains(t, fatal.Error(), tc.want)
		})
	}
}
