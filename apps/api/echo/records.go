package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core/records"
	"github.com/trezcool/homeroom/core/tenancy"
)

type recordsApi struct {
	svc      *records.Service
	validate *validator.Validate
}

// Reads are open to every member, students included; writes need guardian-or-above.
func registerRecordsAPI(g *echo.Group, jwt echo.MiddlewareFunc, requires requireFunc, deps ServerDeps) {
	api := recordsApi{
		svc:      deps.RecordsSvc,
		validate: deps.Validate,
	}
	read := requires(tenancy.AnyMember)
	write := requires(tenancy.GuardianOrAbove)

	sg := g.Group("/students", jwt)
	sg.GET("", api.queryStudents, read)
	sg.POST("", api.createStudent, write)
	sg.GET("/:id", api.retrieveStudent, read)

	cg := g.Group("/courses", jwt)
	cg.GET("", api.queryCourses, read)
	cg.POST("", api.createCourse, write)
	cg.GET("/:id", api.retrieveCourse, read)
	cg.GET("/:id/grades", api.queryGrades, read)
	cg.POST("/:id/grades", api.recordGrade, write)
}

// Students

func (api *recordsApi) queryStudents(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	if err = ord.Bind(ctx, records.StudentOrderingFields...); err != nil {
		return err
	}

	students, err := api.svc.ListStudents(ctx.Request().Context(), rc, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *recordsApi) createStudent(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var data records.NewStudent
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateStudent(ctx.Request().Context(), rc, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *recordsApi) retrieveStudent(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	s, err := api.svc.GetStudent(ctx.Request().Context(), rc, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

// Courses

func (api *recordsApi) queryCourses(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	if err = ord.Bind(ctx, records.CourseOrderingFields...); err != nil {
		return err
	}

	courses, err := api.svc.ListCourses(ctx.Request().Context(), rc, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *recordsApi) createCourse(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var data records.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.CreateCourse(ctx.Request().Context(), rc, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *recordsApi) retrieveCourse(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	c, err := api.svc.GetCourse(ctx.Request().Context(), rc, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

// Grades

func (api *recordsApi) queryGrades(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	courseID, err := paramID(ctx)
	if err != nil {
		return err
	}

	grades, err := api.svc.ListGrades(ctx.Request().Context(), rc, courseID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *recordsApi) recordGrade(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	courseID, err := paramID(ctx)
	if err != nil {
		return err
	}

	var data records.NewGrade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGrade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	g, err := api.svc.RecordGrade(ctx.Request().Context(), rc, courseID, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, g)
}
