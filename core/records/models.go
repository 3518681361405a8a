package records

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/homeroom/core"
)

// Fields listings can be ordered by
var (
	StudentOrderingFields = []string{"name", "grade_level", "created_at"}
	CourseOrderingFields  = []string{"name", "term", "created_at"}
)

type Student struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name       string    `json:"name" db:"name"`
	GradeLevel string    `json:"grade_level" db:"grade_level"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"` // UTC
}

type Course struct {
	ID        uuid.UUID `json:"id" db:"id"`
	TenantID  uuid.UUID `json:"tenant_id" db:"tenant_id"`
	Name      string    `json:"name" db:"name"`
	Term      string    `json:"term" db:"term"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Grade belongs to a course, and through it to a tenant. TenantID duplicates the course's.
type Grade struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TenantID   uuid.UUID `json:"tenant_id" db:"tenant_id"`
	CourseID   uuid.UUID `json:"course_id" db:"course_id"`
	StudentID  uuid.UUID `json:"student_id" db:"student_id"`
	Score      float64   `json:"score" db:"score"`
	Comment    string    `json:"comment" db:"comment"`
	RecordedAt time.Time `json:"recorded_at" db:"recorded_at"` // UTC
}

type NewStudent struct {
	Name       string `json:"name" validate:"required,displayname"`
	GradeLevel string `json:"grade_level" validate:"omitempty,max=32"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.GradeLevel = core.CleanString(ns.GradeLevel)
	return validate.Struct(ns)
}

type NewCourse struct {
	Name string `json:"name" validate:"required,displayname"`
	Term string `json:"term" validate:"omitempty,max=32"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Term = core.CleanString(nc.Term)
	return validate.Struct(nc)
}

type NewGrade struct {
	StudentID uuid.UUID `json:"student_id" validate:"required"`
	Score     float64   `json:"score" validate:"gte=0,lte=100"`
	Comment   string    `json:"comment" validate:"omitempty,max=500"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.Comment = core.CleanString(ng.Comment)
	return validate.Struct(ng)
}
