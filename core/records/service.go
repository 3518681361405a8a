// Package records is the academic-records CRUD. Each operation runs in a unit of work under the
// request's ambient state and filters by tenant itself; the storage policies are the backstop.
package records

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/tenancy"
)

var ErrNotFound = errors.New("record not found")

type (
	// Repository queries are restricted to scope when scope is valid.
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, scope uuid.NullUUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)

		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourseByID(ctx context.Context, scope uuid.NullUUID, id uuid.UUID, exec ...core.DBExecutor) (Course, error)
		QueryCourses(ctx context.Context, scope uuid.NullUUID, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)

		CreateGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)
		QueryGradesByCourse(ctx context.Context, scope uuid.NullUUID, courseID uuid.UUID, exec ...core.DBExecutor) ([]Grade, error)
	}

	Service struct {
		repo Repository
		uow  core.UnitOfWork
	}
)

var nowFunc = time.Now

func NewService(repo Repository, uow core.UnitOfWork) *Service {
	return &Service{repo: repo, uow: uow}
}

// scope is the application-side tenant filter. Only super_admin goes unfiltered.
func scope(rc *tenancy.RequestContext) uuid.NullUUID {
	if rc.Role == tenancy.RoleSuperAdmin {
		return uuid.NullUUID{}
	}
	return rc.TenantID
}

// ownTenant is the tenant new rows are created in.
func ownTenant(rc *tenancy.RequestContext) (uuid.UUID, error) {
	if !rc.TenantID.Valid {
		return uuid.Nil, tenancy.Forbidden(tenancy.ReasonNoTenant)
	}
	return rc.TenantID.UUID, nil
}

func notFound(err error) error {
	if errors.Cause(err) == ErrNotFound {
		return ErrNotFound
	}
	return err
}

// Students

func (svc *Service) CreateStudent(ctx context.Context, rc *tenancy.RequestContext, ns NewStudent) (Student, error) {
	tenantID, err := ownTenant(rc)
	if err != nil {
		return Student{}, err
	}

	now := nowFunc().UTC()
	var s Student
	err = svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		s, err = svc.repo.CreateStudent(ctx, Student{
			ID:         uuid.New(),
			TenantID:   tenantID,
			Name:       ns.Name,
			GradeLevel: ns.GradeLevel,
			CreatedAt:  now,
			UpdatedAt:  now,
		}, exec)
		return err
	})
	return s, errors.Wrap(err, "creating student")
}

func (svc *Service) GetStudent(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID) (Student, error) {
	var s Student
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		s, err = svc.repo.GetStudentByID(ctx, scope(rc), id, exec)
		return err
	})
	if err != nil {
		return Student{}, notFound(err)
	}
	if !tenancy.HasTenantAccess(rc.Ambient(), s.TenantID) {
		return Student{}, ErrNotFound
	}
	return s, nil
}

func (svc *Service) ListStudents(ctx context.Context, rc *tenancy.RequestContext, ordering []core.DBOrdering) ([]Student, error) {
	var students []Student
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		students, err = svc.repo.QueryStudents(ctx, scope(rc), ordering, exec)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}

	amb := rc.Ambient()
	visible := make([]Student, 0, len(students))
	for _, s := range students {
		if tenancy.HasTenantAccess(amb, s.TenantID) {
			visible = append(visible, s)
		}
	}
	return visible, nil
}

// Courses

func (svc *Service) CreateCourse(ctx context.Context, rc *tenancy.RequestContext, nc NewCourse) (Course, error) {
	tenantID, err := ownTenant(rc)
	if err != nil {
		return Course{}, err
	}

	now := nowFunc().UTC()
	var c Course
	err = svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		c, err = svc.repo.CreateCourse(ctx, Course{
			ID:        uuid.New(),
			TenantID:  tenantID,
			Name:      nc.Name,
			Term:      nc.Term,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return err
	})
	return c, errors.Wrap(err, "creating course")
}

func (svc *Service) getCourse(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID, exec core.DBExecutor) (Course, error) {
	c, err := svc.repo.GetCourseByID(ctx, scope(rc), id, exec)
	if err != nil {
		return Course{}, notFound(err)
	}
	if !tenancy.HasTenantAccess(rc.Ambient(), c.TenantID) {
		return Course{}, ErrNotFound
	}
	return c, nil
}

func (svc *Service) GetCourse(ctx context.Context, rc *tenancy.RequestContext, id uuid.UUID) (Course, error) {
	var c Course
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		c, err = svc.getCourse(ctx, rc, id, exec)
		return err
	})
	return c, err
}

func (svc *Service) ListCourses(ctx context.Context, rc *tenancy.RequestContext, ordering []core.DBOrdering) ([]Course, error) {
	var courses []Course
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		var err error
		courses, err = svc.repo.QueryCourses(ctx, scope(rc), ordering, exec)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}

	amb := rc.Ambient()
	visible := make([]Course, 0, len(courses))
	for _, c := range courses {
		if tenancy.HasTenantAccess(amb, c.TenantID) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Grades

// RecordGrade adds a grade to a course. Course and student must both be visible and share a tenant.
func (svc *Service) RecordGrade(ctx context.Context, rc *tenancy.RequestContext, courseID uuid.UUID, ng NewGrade) (Grade, error) {
	var g Grade
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		c, err := svc.getCourse(ctx, rc, courseID, exec)
		if err != nil {
			return err
		}
		s, err := svc.repo.GetStudentByID(ctx, scope(rc), ng.StudentID, exec)
		if err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewFieldError("student_id", "student not found")
			}
			return err
		}
		if s.TenantID != c.TenantID {
			return core.NewFieldError("student_id", "student not found")
		}

		g, err = svc.repo.CreateGrade(ctx, Grade{
			ID:         uuid.New(),
			TenantID:   c.TenantID,
			CourseID:   c.ID,
			StudentID:  s.ID,
			Score:      ng.Score,
			Comment:    ng.Comment,
			RecordedAt: nowFunc().UTC(),
		}, exec)
		return err
	})
	return g, err
}

func (svc *Service) ListGrades(ctx context.Context, rc *tenancy.RequestContext, courseID uuid.UUID) ([]Grade, error) {
	var grades []Grade
	err := svc.uow.Run(ctx, rc.Ambient(), func(ctx context.Context, exec core.DBExecutor) error {
		if _, err := svc.getCourse(ctx, rc, courseID, exec); err != nil {
			return err
		}
		var err error
		grades, err = svc.repo.QueryGradesByCourse(ctx, scope(rc), courseID, exec)
		return err
	})
	if err != nil {
		return nil, err
	}

	amb := rc.Ambient()
	visible := make([]Grade, 0, len(grades))
	for _, g := range grades {
		if tenancy.HasTenantAccess(amb, g.TenantID) {
			visible = append(visible, g)
		}
	}
	return visible, nil
}
