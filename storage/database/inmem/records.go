package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/records"
)

type recordsRepository struct {
	db *DB
}

var _ records.Repository = (*recordsRepository)(nil) // interface compliance check

func NewRecordsRepository(db *DB) records.Repository {
	return &recordsRepository{db: db}
}

func (repo *recordsRepository) CreateStudent(ctx context.Context, s records.Student, _ ...core.DBExecutor) (records.Student, error) {
	if !visible(ctx, s.TenantID) {
		return records.Student{}, errPolicyViolation
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.students[s.ID] = &s
	return s, nil
}

func (repo *recordsRepository) GetStudentByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, _ ...core.DBExecutor) (records.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.students[id]; ok && inScope(scope, s.TenantID) && visible(ctx, s.TenantID) {
		return *s, nil
	}
	return records.Student{}, records.ErrNotFound
}

func (repo *recordsRepository) QueryStudents(ctx context.Context, scope uuid.NullUUID, _ []core.DBOrdering, _ ...core.DBExecutor) ([]records.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]records.Student, 0)
	for _, s := range repo.db.students {
		if inScope(scope, s.TenantID) && visible(ctx, s.TenantID) {
			students = append(students, *s)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *recordsRepository) CreateCourse(ctx context.Context, c records.Course, _ ...core.DBExecutor) (records.Course, error) {
	if !visible(ctx, c.TenantID) {
		return records.Course{}, errPolicyViolation
	}
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *recordsRepository) GetCourseByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, _ ...core.DBExecutor) (records.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok && inScope(scope, c.TenantID) && visible(ctx, c.TenantID) {
		return *c, nil
	}
	return records.Course{}, records.ErrNotFound
}

func (repo *recordsRepository) QueryCourses(ctx context.Context, scope uuid.NullUUID, _ []core.DBOrdering, _ ...core.DBExecutor) ([]records.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]records.Course, 0)
	for _, c := range repo.db.courses {
		if inScope(scope, c.TenantID) && visible(ctx, c.TenantID) {
			courses = append(courses, *c)
		}
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].Name < courses[j].Name })
	return courses, nil
}

// gradeVisible checks the grade's own tenant and the tenant reached through its course.
func (repo *recordsRepository) gradeVisible(ctx context.Context, g *records.Grade) bool {
	c, ok := repo.db.courses[g.CourseID]
	return ok && c.TenantID == g.TenantID && visible(ctx, g.TenantID) && visible(ctx, c.TenantID)
}

func (repo *recordsRepository) CreateGrade(ctx context.Context, g records.Grade, _ ...core.DBExecutor) (records.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if !repo.gradeVisible(ctx, &g) {
		return records.Grade{}, errPolicyViolation
	}
	repo.db.grades[g.ID] = &g
	return g, nil
}

func (repo *recordsRepository) QueryGradesByCourse(ctx context.Context, scope uuid.NullUUID, courseID uuid.UUID, _ ...core.DBExecutor) ([]records.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make([]records.Grade, 0)
	for _, g := range repo.db.grades {
		if g.CourseID == courseID && inScope(scope, g.TenantID) && repo.gradeVisible(ctx, g) {
			grades = append(grades, *g)
		}
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].RecordedAt.Before(grades[j].RecordedAt) })
	return grades, nil
}
