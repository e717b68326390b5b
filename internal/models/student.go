package models

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Student struct {
	ID          uuid.UUID  `json:"id"`
	StudentCode string     `json:"student_code"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       *string    `json:"email"`
	GradeLevel  *int       `json:"grade_level"`
	BirthDate   *time.Time `json:"birth_date"`
	ClassID     *string    `json:"class_id"`
	SchoolYear  *string    `json:"school_year"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// RosterRow is one raw data row of an uploaded roster, keyed by canonical column name.
type RosterRow struct {
	Line   int
	Fields map[string]string
}

func (r RosterRow) Get(column string) string {
	return r.Fields[column]
}

// ImportOptions scope a roster import.
type ImportOptions struct {
	ClassID        string `json:"class_id,omitempty"`
	SchoolYear     string `json:"school_year,omitempty"`
	UpdateExisting bool   `json:"update_existing"`
}

// RosterExtensions lists the file types accepted for roster import.
var RosterExtensions = []string{".csv", ".xlsx"}

func IsSupportedRoster(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range RosterExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
