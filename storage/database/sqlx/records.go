package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/records"
	"github.com/trezcool/homeroom/storage/database"
)

const (
	studentColumns = "id, tenant_id, name, grade_level, created_at, updated_at"
	courseColumns  = "id, tenant_id, name, term, created_at, updated_at"
	gradeColumns   = "id, tenant_id, course_id, student_id, score, comment, recorded_at"
)

var (
	studentOrderings = map[string]string{"name": "name", "grade_level": "grade_level", "created_at": "created_at"}
	courseOrderings  = map[string]string{"name": "name", "term": "term", "created_at": "created_at"}
)

// recordsRepository adds the application tenant filter (scope) to its queries.
// Row level security filters them again in the database.
type recordsRepository struct {
	exec core.DBExecutor
}

var _ records.Repository = (*recordsRepository)(nil) // interface compliance check

func NewRecordsRepository(exec core.DBExecutor) *recordsRepository {
	return &recordsRepository{exec: exec}
}

func (repo recordsRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// selectAll runs a "?"-placeholder query and scans every row into dest, a pointer to a slice.
func selectAll(ctx context.Context, exec core.DBExecutor, dest interface{}, q string, args ...interface{}) error {
	rows, err := exec.QueryContext(ctx, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	return sqlx.StructScan(rows, dest)
}

func scoped(q string, scope uuid.NullUUID, args []interface{}) (string, []interface{}) {
	if !scope.Valid {
		return q, args
	}
	return q + " AND tenant_id = ?", append(args, scope.UUID)
}

// Students

func (repo recordsRepository) CreateStudent(ctx context.Context, s records.Student, exec ...core.DBExecutor) (records.Student, error) {
	var created []records.Student
	err := selectAll(ctx, repo.getExec(exec), &created,
		`INSERT INTO students (id, tenant_id, name, grade_level, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+studentColumns,
		s.ID, s.TenantID, s.Name, s.GradeLevel, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return records.Student{}, errors.Wrap(err, "inserting student")
	}
	if len(created) == 0 {
		return records.Student{}, errors.New("inserting student: no row returned")
	}
	return created[0], nil
}

func (repo recordsRepository) GetStudentByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, exec ...core.DBExecutor) (records.Student, error) {
	q, args := scoped("SELECT "+studentColumns+" FROM students WHERE id = ?", scope, []interface{}{id})

	var found []records.Student
	if err := selectAll(ctx, repo.getExec(exec), &found, q, args...); err != nil {
		return records.Student{}, errors.Wrap(err, "getting student by ID")
	}
	if len(found) == 0 {
		return records.Student{}, records.ErrNotFound
	}
	return found[0], nil
}

func (repo recordsRepository) QueryStudents(ctx context.Context, scope uuid.NullUUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]records.Student, error) {
	q, args := scoped("SELECT "+studentColumns+" FROM students WHERE TRUE", scope, nil)
	q += database.OrderBy(ordering, studentOrderings, "name")

	students := make([]records.Student, 0)
	if err := selectAll(ctx, repo.getExec(exec), &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

// Courses

func (repo recordsRepository) CreateCourse(ctx context.Context, c records.Course, exec ...core.DBExecutor) (records.Course, error) {
	var created []records.Course
	err := selectAll(ctx, repo.getExec(exec), &created,
		`INSERT INTO courses (id, tenant_id, name, term, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+courseColumns,
		c.ID, c.TenantID, c.Name, c.Term, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return records.Course{}, errors.Wrap(err, "inserting course")
	}
	if len(created) == 0 {
		return records.Course{}, errors.New("inserting course: no row returned")
	}
	return created[0], nil
}

func (repo recordsRepository) GetCourseByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, exec ...core.DBExecutor) (records.Course, error) {
	q, args := scoped("SELECT "+courseColumns+" FROM courses WHERE id = ?", scope, []interface{}{id})

	var found []records.Course
	if err := selectAll(ctx, repo.getExec(exec), &found, q, args...); err != nil {
		return records.Course{}, errors.Wrap(err, "getting course by ID")
	}
	if len(found) == 0 {
		return records.Course{}, records.ErrNotFound
	}
	return found[0], nil
}

func (repo recordsRepository) QueryCourses(ctx context.Context, scope uuid.NullUUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]records.Course, error) {
	q, args := scoped("SELECT "+courseColumns+" FROM courses WHERE TRUE", scope, nil)
	q += database.OrderBy(ordering, courseOrderings, "name")

	courses := make([]records.Course, 0)
	if err := selectAll(ctx, repo.getExec(exec), &courses, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	return courses, nil
}

// Grades

func (repo recordsRepository) CreateGrade(ctx context.Context, g records.Grade, exec ...core.DBExecutor) (records.Grade, error) {
	var created []records.Grade
	err := selectAll(ctx, repo.getExec(exec), &created,
		`INSERT INTO grades (id, tenant_id, course_id, student_id, score, comment, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING `+gradeColumns,
		g.ID, g.TenantID, g.CourseID, g.StudentID, g.Score, g.Comment, g.RecordedAt,
	)
	if err != nil {
		return records.Grade{}, errors.Wrap(err, "inserting grade")
	}
	if len(created) == 0 {
		return records.Grade{}, errors.New("inserting grade: no row returned")
	}
	return created[0], nil
}

func (repo recordsRepository) QueryGradesByCourse(ctx context.Context, scope uuid.NullUUID, courseID uuid.UUID, exec ...core.DBExecutor) ([]records.Grade, error) {
	q, args := scoped("SELECT "+gradeColumns+" FROM grades WHERE course_id = ?", scope, []interface{}{courseID})
	q += " ORDER BY recorded_at"

	grades := make([]records.Grade, 0)
	if err := selectAll(ctx, repo.getExec(exec), &grades, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	return grades, nil
}
