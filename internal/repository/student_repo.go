package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schoolhub-backend/internal/models"
)

type StudentRepo struct {
	pool *pgxpool.Pool
}

func NewStudentRepo(pool *pgxpool.Pool) *StudentRepo {
	return &StudentRepo{pool: pool}
}

// ApplyRow inserts or updates one imported student inside its own
// transaction, so a failed row leaves no partial writes behind.
func (r *StudentRepo) ApplyRow(ctx context.Context, s *models.Student, opts models.ImportOptions) (models.RowAction, string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing := &models.Student{}
	err = tx.QueryRow(ctx, `
		SELECT id, student_code, first_name, last_name, email, grade_level, birth_date, class_id, school_year
		FROM students WHERE student_code = $1 FOR UPDATE`, s.StudentCode,
	).Scan(
		&existing.ID, &existing.StudentCode, &existing.FirstName, &existing.LastName, &existing.Email,
		&existing.GradeLevel, &existing.BirthDate, &existing.ClassID, &existing.SchoolYear,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		tag, err := tx.Exec(ctx, `
			INSERT INTO students (student_code, first_name, last_name, email, grade_level, birth_date, class_id, school_year)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (student_code) DO NOTHING`,
			s.StudentCode, s.FirstName, s.LastName, s.Email, s.GradeLevel, s.BirthDate, s.ClassID, s.SchoolYear,
		)
		if err != nil {
			return "", "", fmt.Errorf("failed to insert student: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return models.RowSkipped, "student was added concurrently", nil
		}
		if err := tx.Commit(ctx); err != nil {
			return "", "", fmt.Errorf("failed to commit student: %w", err)
		}
		return models.RowAdded, "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to look up student: %w", err)
	}

	if !opts.UpdateExisting {
		return models.RowSkipped, "student already exists", nil
	}

	merged := mergeStudent(existing, s)
	if sameStudent(existing, merged) {
		return models.RowSkipped, "no changes", nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE students SET first_name = $1, last_name = $2, email = $3, grade_level = $4,
			birth_date = $5, class_id = $6, school_year = $7, updated_at = NOW()
		WHERE id = $8`,
		merged.FirstName, merged.LastName, merged.Email, merged.GradeLevel,
		merged.BirthDate, merged.ClassID, merged.SchoolYear, existing.ID,
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to update student: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", "", fmt.Errorf("failed to commit student: %w", err)
	}
	return models.RowUpdated, "", nil
}

// mergeStudent overlays the imported values on the stored record. Optional
// columns left empty in the file keep their stored value.
func mergeStudent(cur, in *models.Student) *models.Student {
	out := *cur
	out.FirstName = in.FirstName
	out.LastName = in.LastName
	if in.Email != nil {
		out.Email = in.Email
	}
	if in.GradeLevel != nil {
		out.GradeLevel = in.GradeLevel
	}
	if in.BirthDate != nil {
		out.BirthDate = in.BirthDate
	}
	if in.ClassID != nil {
		out.ClassID = in.ClassID
	}
	if in.SchoolYear != nil {
		out.SchoolYear = in.SchoolYear
	}
	return &out
}

func sameStudent(a, b *models.Student) bool {
	return a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		eqPtr(a.Email, b.Email) &&
		eqPtr(a.GradeLevel, b.GradeLevel) &&
		eqDate(a, b) &&
		eqPtr(a.ClassID, b.ClassID) &&
		eqPtr(a.SchoolYear, b.SchoolYear)
}

func eqDate(a, b *models.Student) bool {
	if a.BirthDate == nil || b.BirthDate == nil {
		return a.BirthDate == b.BirthDate
	}
	return a.BirthDate.Format("2006-01-02") == b.BirthDate.Format("2006-01-02")
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
