package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/tenancy"
)

const (
	contextTokenKey   = "sessionToken"
	contextRequestKey = "requestContext"
	tokenAudience     = "homeroom-api"
)

// Claims represents the session claims transmitted via a JWT.
// TenantID and Role are what the directory said when the token was issued: they are
// never trusted on their own, every request re-reads the directory.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt    int64  `json:"oriat,omitempty"`
	IdentitySubject string `json:"idp_sub,omitempty"`
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	TenantID        string `json:"tenant_id,omitempty"`
	Role            string `json:"role,omitempty"`
}

// principal converts the claims into the identity handed to the authorization pipeline.
func (c Claims) principal() *tenancy.Principal {
	p := &tenancy.Principal{
		Subject: c.IdentitySubject,
		Email:   c.Email,
		Name:    c.Name,
		Role:    tenancy.Role(c.Role),
	}
	if id, err := uuid.Parse(c.Subject); err == nil {
		p.AccountID = id
	}
	if id, ok := tenancy.CurrentTenant(c.TenantID); ok {
		p.TenantID = uuid.NullUUID{UUID: id, Valid: true}
	}
	return p
}

// account is the best-effort account the claims describe; used for error reports.
func (c Claims) account() account.Account {
	p := c.principal()
	return account.Account{
		ID:       p.AccountID,
		Subject:  p.Subject,
		Email:    p.Email,
		Name:     p.Name,
		TenantID: p.TenantID,
		Role:     p.Role,
	}
}

type auth struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func newAuth(conf *core.Config) *auth {
	return &auth{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
		},
	}
}

// NewClaims returns the session claims of acc. origIat carries over the original issue time on refresh.
func NewClaims(conf *core.Config, acc account.Account, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   acc.ID.String(),
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt:    oriat,
		IdentitySubject: acc.Subject,
		Email:           acc.Email,
		Name:            acc.Name,
		Role:            string(acc.Role),
	}
	if acc.TenantID.Valid {
		claims.TenantID = acc.TenantID.UUID.String()
	}
	return claims
}

// GenerateToken generates a signed JWT token string representing the session Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, tenancy.ErrUnauthenticated
}

// getContextPrincipal returns nil when the request carries no valid session.
func getContextPrincipal(ctx echo.Context) *tenancy.Principal {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil
	}
	return claims.principal()
}

func getRequestContext(ctx echo.Context) (*tenancy.RequestContext, error) {
	if rc, ok := ctx.Get(contextRequestKey).(*tenancy.RequestContext); ok && rc != nil {
		return rc, nil
	}
	if rc, ok := tenancy.FromContext(ctx.Request().Context()); ok {
		return rc, nil
	}
	return nil, tenancy.ErrUnauthenticated
}

// refreshToken issues a new token from the directory's current facts, not from the old claims.
func (a *auth) refreshToken(ctx echo.Context, svc *account.Service) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return "", tenancy.ErrUnauthenticated
	}

	acc, err := svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		if errors.Cause(err) == account.ErrNotFound {
			return "", tenancy.Forbidden(tenancy.ReasonInvalidAccount)
		}
		return "", errors.Wrap(err, "getting account by ID")
	}

	// check if account is still active
	if !acc.IsActive {
		return "", tenancy.Forbidden(tenancy.ReasonAccountDeactivated)
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return "", errRefreshExpired
	}

	token, err := GenerateToken(a.conf, NewClaims(a.conf, acc, claims.OrigIssuedAt))
	return token, errors.Wrap(err, "generating token")
}
