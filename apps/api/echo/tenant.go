package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
)

type tenantApi struct {
	svc      *tenant.Service
	validate *validator.Validate
}

func registerTenantAPI(g *echo.Group, jwt echo.MiddlewareFunc, requires requireFunc, deps ServerDeps) {
	api := tenantApi{
		svc:      deps.TenantSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/tenant", jwt)
	tg.GET("", api.retrieve, requires(tenancy.GuardianOrAbove))
	tg.PUT("", api.update, requires(tenancy.PrimaryGuardianOrAdmin))

	// platform endpoints
	ag := g.Group("/admin/tenants", jwt, requires(tenancy.AdminOnly))
	ag.GET("", api.query)
	ag.GET("/orphans", api.queryOrphans)
}

// Handlers

func (api *tenantApi) retrieve(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.Get(ctx.Request().Context(), rc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) update(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	orig, err := api.svc.Get(ctx.Request().Context(), rc)
	if err != nil {
		return err
	}

	var data tenant.UpdateTenant
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	if err = data.Validate(api.validate, orig); err != nil {
		return err
	}

	t, err := api.svc.UpdateSettings(ctx.Request().Context(), rc, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) query(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	if err = ord.Bind(ctx, tenant.OrderingFields...); err != nil {
		return err
	}

	tenants, err := api.svc.List(ctx.Request().Context(), rc, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) queryOrphans(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	tenants, err := api.svc.Orphans(ctx.Request().Context(), rc.Ambient())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tenants)
}
