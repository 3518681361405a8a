package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/identity"
	"github.com/trezcool/homeroom/core/tenancy"
)

type accountApi struct {
	conf     *core.Config
	auth     *auth
	svc      *account.Service
	identity identity.Provider
	validate *validator.Validate
}

func registerAccountAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	signInLimit echo.MiddlewareFunc,
	identified echo.MiddlewareFunc,
	requires requireFunc,
	auth *auth,
	deps ServerDeps,
) {
	api := accountApi{
		conf:     deps.Conf,
		auth:     auth,
		svc:      deps.AccountSvc,
		identity: deps.Identity,
		validate: deps.Validate,
	}

	// un-authed endpoints
	g.POST("/auth/callback", api.callback, signInLimit)

	// authed endpoints
	g.POST("/auth/token-refresh", api.refreshToken, jwt)
	g.GET("/me", api.me, jwt, identified)

	g.GET("/tenant/members", api.listMembers, jwt, requires(tenancy.GuardianOrAbove))
	ag := g.Group("/accounts/:id", jwt, requires(tenancy.PrimaryGuardianOrAdmin))
	ag.PUT("/role", api.changeRole)
	ag.POST("/deactivate", api.deactivate)
}

// Handlers

// callback exchanges an identity provider assertion for a session token, onboarding the account
// on its first sign-in.
func (api *accountApi) callback(ctx echo.Context) error {
	var data CallbackRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CallbackRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	prof, err := api.identity.Verify(ctx.Request().Context(), data.Assertion)
	if err != nil {
		if errors.Cause(err) == identity.ErrInvalidAssertion {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "verifying assertion")
	}

	acc, err := api.svc.Onboard(ctx.Request().Context(), prof)
	if err != nil {
		return err
	}
	token, err := GenerateToken(api.conf, NewClaims(api.conf, acc))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}

	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, Account: &acc})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

// me only requires a live session: it works for accounts of any role, bound or not, but not
// for deactivated ones.
func (api *accountApi) me(ctx echo.Context) error {
	p := getContextPrincipal(ctx)
	acc, err := api.svc.GetByID(ctx.Request().Context(), p.AccountID)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			return tenancy.Forbidden(tenancy.ReasonInvalidAccount)
		}
		return errors.Wrap(err, "getting account by ID")
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) listMembers(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	var ord Ordering
	if err = ord.Bind(ctx, account.OrderingFields...); err != nil {
		return err
	}

	members, err := api.svc.ListMembers(ctx.Request().Context(), rc, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, members)
}

func (api *accountApi) changeRole(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	var data account.UpdateRole
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRole")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.svc.ChangeRole(ctx.Request().Context(), rc, id, tenancy.Role(data.Role))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

func (api *accountApi) deactivate(ctx echo.Context) error {
	rc, err := getRequestContext(ctx)
	if err != nil {
		return err
	}
	id, err := paramID(ctx)
	if err != nil {
		return err
	}

	acc, err := api.svc.Deactivate(ctx.Request().Context(), rc, id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, acc)
}

// paramID parses the :id path param. Malformed ids are reported like unknown ones.
func paramID(ctx echo.Context, name ...string) (uuid.UUID, error) {
	param := "id"
	if len(name) > 0 {
		param = name[0]
	}
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		return uuid.Nil, errHttpNotFound
	}
	return id, nil
}

// Requests & Responses

type (
	CallbackRequest struct {
		Assertion string `json:"assertion" validate:"required"`
	}

	LoginResponse struct {
		Token   string           `json:"token"`
		Account *account.Account `json:"account,omitempty"`
	}
)

func (cr *CallbackRequest) Validate(validate *validator.Validate) error {
	cr.Assertion = core.CleanString(cr.Assertion)
	return validate.Struct(cr)
}
