package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/homeroom/apps/api/echo"
	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/identity"
	"github.com/trezcool/homeroom/core/records"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
)

var (
	errPleaseSignIn = httpErr{Error: "please sign in"}
	errNotFound     = httpErr{Error: "not found"}
)

func requiresOneOf(cs tenancy.CapabilitySet) httpErr {
	return httpErr{Error: "requires one of: " + cs.String()}
}

func run(t *testing.T, f fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			f.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v))
}

func TestAPI_home(t *testing.T) {
	f := setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Homeroom API!", rec.Body.String())

	req, rec = newRequest(http.MethodGet, "/metrics")
	f.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_callback(t *testing.T) {
	f := setup(t)
	prof := identity.Profile{Subject: "idp|ann", Email: "ann@test.test", Name: "Ann"}

	bad, err := identity.NewAssertion(core.IdentityConfig{Issuer: f.conf.Identity.Issuer, Audience: f.conf.Identity.Audience, SigningKey: "wrong"}, prof, 0)
	require.NoError(t, err)

	run(t, f, []httpTest{
		{
			name: "invalid assertion", method: http.MethodPost, path: "/v1/auth/callback",
			body:     marchallObj(t, CallbackRequest{Assertion: bad}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "missing assertion", method: http.MethodPost, path: "/v1/auth/callback",
			body: marchallObj(t, CallbackRequest{}), wantCode: http.StatusBadRequest,
		},
	})

	token, acc := f.onboard(t, prof)
	assert.NotEmpty(t, token)
	assert.True(t, acc.TenantID.Valid)
	assert.Equal(t, tenancy.RolePrimaryGuardian, acc.Role)

	// second sign-in: same account, same tenant
	_, again := f.onboard(t, prof)
	assert.Equal(t, acc.ID, again.ID)
	assert.Equal(t, acc.TenantID, again.TenantID)

	// the session works right away
	req, rec := newAuthRequest(http.MethodGet, "/v1/tenant", token)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tnt tenant.Tenant
	decode(t, rec.Body.Bytes(), &tnt)
	assert.Equal(t, acc.TenantID.UUID, tnt.ID)
	assert.Equal(t, tenant.StatusTrialing, tnt.Status)
}

func TestAPI_callback_rateLimited(t *testing.T) {
	f := setup(t, func(conf *core.Config) {
		conf.Server.SignInRate = 0.0001
		conf.Server.SignInBurst = 2
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, rec := newRequest(http.MethodPost, "/v1/auth/callback", marchallObj(t, CallbackRequest{Assertion: "nope"}))
		f.app.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestAPI_authorizationGates(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	ownerToken, owner := f.onboard(t, identity.Profile{Subject: "idp|owner", Email: "owner@test.test", Name: "Owner"})
	student := f.member(t, "kid", owner.TenantID.UUID, tenancy.RoleStudent)
	unbound := f.member(t, "lost", uuid.Nil, "")
	ghost := account.Account{ID: uuid.New(), TenantID: owner.TenantID, Role: tenancy.RoleGuardian}
	retired := f.member(t, "retired", owner.TenantID.UUID, tenancy.RoleGuardian)
	_, err := f.accRepo.SetActive(ctx, retired.ID, false)
	require.NoError(t, err)

	studentToken := getToken(t, f.conf, student)

	run(t, f, []httpTest{
		{name: "no token", path: "/v1/students", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errPleaseSignIn)},
		{name: "garbage token", path: "/v1/students", token: "not.a.jwt", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errPleaseSignIn)},
		{
			name: "no tenant", path: "/v1/students", token: getToken(t, f.conf, unbound),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonNoTenant}),
		},
		{
			name: "unknown account", path: "/v1/students", token: getToken(t, f.conf, ghost),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonInvalidAccount}),
		},
		{
			name: "deactivated account", path: "/v1/students", token: getToken(t, f.conf, retired),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated}),
		},
		{name: "student reads", path: "/v1/students", token: studentToken, wantCode: http.StatusOK, wantData: []byte("[]")},
		{
			name: "student writes", method: http.MethodPost, path: "/v1/students", token: studentToken,
			body:     marchallObj(t, records.NewStudent{Name: "Sneaky"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.GuardianOrAbove)),
		},
		{
			name: "student reads tenant", path: "/v1/tenant", token: studentToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.GuardianOrAbove)),
		},
		{
			name: "owner is no admin", path: "/v1/admin/tenants", token: ownerToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.AdminOnly)),
		},
		{
			name: "me needs a session only", path: "/v1/me", token: getToken(t, f.conf, unbound),
			wantCode: http.StatusOK,
		},
		{name: "me without session", path: "/v1/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errPleaseSignIn)},
		{
			name: "me deactivated", path: "/v1/me", token: getToken(t, f.conf, retired),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated}),
		},
		{
			name: "me unknown account", path: "/v1/me", token: getToken(t, f.conf, ghost),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonInvalidAccount}),
		},
	})

	// deactivation takes effect on the very next request of a live session
	token, signedIn := f.onboard(t, identity.Profile{Subject: "idp|leaver", Email: "leaver@test.test", Name: "Leaver"})
	run(t, f, []httpTest{{name: "me before deactivation", path: "/v1/me", token: token, wantCode: http.StatusOK}})
	_, err = f.accRepo.SetActive(ctx, signedIn.ID, false)
	require.NoError(t, err)
	run(t, f, []httpTest{
		{
			name: "me after deactivation", path: "/v1/me", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated}),
		},
		{
			name: "students after deactivation", path: "/v1/students", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated}),
		},
	})
}

func TestAPI_freshClaims(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	_, owner := f.onboard(t, identity.Profile{Subject: "idp|owner", Email: "owner@test.test", Name: "Owner"})
	kid := f.member(t, "kid", owner.TenantID.UUID, tenancy.RoleGuardian)

	// the token claims guardian in some other tenant
	stale := kid
	stale.TenantID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	staleToken := getToken(t, f.conf, stale)

	// the directory wins: kid writes into the fresh tenant
	req, rec := newAuthRequest(http.MethodPost, "/v1/students", staleToken, marchallObj(t, records.NewStudent{Name: "Amani"}))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s records.Student
	decode(t, rec.Body.Bytes(), &s)
	assert.Equal(t, owner.TenantID.UUID, s.TenantID)

	// demoted: the old token no longer writes
	_, err := f.accRepo.UpdateRole(ctx, kid.ID, tenancy.RoleStudent)
	require.NoError(t, err)
	req, rec = newAuthRequest(http.MethodPost, "/v1/students", staleToken, marchallObj(t, records.NewStudent{Name: "Baraka"}))
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.GuardianOrAbove))}, rec)

	// refresh re-reads the directory
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", staleToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	decode(t, rec.Body.Bytes(), &resp)
	assert.Nil(t, resp.Account)

	_, err = f.accRepo.SetActive(ctx, kid.ID, false)
	require.NoError(t, err)
	req, rec = newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", resp.Token)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated})}, rec)
}

// Two families, one record: the second family never sees it, a platform super_admin without a
// tenant does.
func TestAPI_tenantIsolation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	token1, u1 := f.onboard(t, identity.Profile{Subject: "idp|u1", Email: "u1@test.test", Name: "U One"})
	token2, u2 := f.onboard(t, identity.Profile{Subject: "idp|u2", Email: "u2@test.test", Name: "U Two"})
	require.NotEqual(t, u1.TenantID, u2.TenantID)

	post := func(token, path string, obj interface{}, dst interface{}) {
		t.Helper()
		req, rec := newAuthRequest(http.MethodPost, path, token, marchallObj(t, obj))
		f.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		decode(t, rec.Body.Bytes(), dst)
	}

	var (
		r1 records.Student
		c1 records.Course
		g1 records.Grade
	)
	post(token1, "/v1/students", records.NewStudent{Name: "Amani", GradeLevel: "P3"}, &r1)
	post(token1, "/v1/courses", records.NewCourse{Name: "Maths", Term: "2026-T1"}, &c1)
	post(token1, "/v1/courses/"+c1.ID.String()+"/grades", records.NewGrade{StudentID: r1.ID, Score: 91}, &g1)
	assert.Equal(t, u1.TenantID.UUID, r1.TenantID)
	assert.Equal(t, u1.TenantID.UUID, g1.TenantID)

	admin, err := f.accounts.GrantPlatformRole(ctx, account.NewPlatformAccount{
		Subject: "idp|root", Email: "root@test.test", Name: "Root", Role: string(tenancy.RoleSuperAdmin),
	})
	require.NoError(t, err)
	require.False(t, admin.TenantID.Valid)
	adminToken := getToken(t, f.conf, admin)

	support, err := f.accounts.GrantPlatformRole(ctx, account.NewPlatformAccount{
		Subject: "idp|help", Email: "help@test.test", Name: "Help", Role: string(tenancy.RoleSupportAdmin),
	})
	require.NoError(t, err)
	supportToken := getToken(t, f.conf, support)

	// a plain guardian of t1
	guardianToken := getToken(t, f.conf, f.member(t, "g1", u1.TenantID.UUID, tenancy.RoleGuardian))

	r1Path := "/v1/students/" + r1.ID.String()
	c1Path := "/v1/courses/" + c1.ID.String()

	run(t, f, []httpTest{
		{name: "owner reads r1", path: r1Path, token: token1, wantCode: http.StatusOK, wantData: marchallObj(t, r1)},
		{name: "guardian of t1 reads r1", path: r1Path, token: guardianToken, wantCode: http.StatusOK, wantData: marchallObj(t, r1)},
		{name: "guardian of t1 lists r1", path: "/v1/students", token: guardianToken, wantCode: http.StatusOK, wantData: marchallObj(t, []records.Student{r1})},
		{name: "owner reads grades", path: c1Path + "/grades", token: token1, wantCode: http.StatusOK, wantData: marchallObj(t, []records.Grade{g1})},
		{name: "t2 cannot read r1", path: r1Path, token: token2, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "t2 lists nothing", path: "/v1/students", token: token2, wantCode: http.StatusOK, wantData: []byte("[]")},
		{name: "t2 cannot read c1", path: c1Path, token: token2, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "t2 cannot read grades", path: c1Path + "/grades", token: token2, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "t2 cannot grade into c1", method: http.MethodPost, path: c1Path + "/grades", token: token2,
			body:     marchallObj(t, records.NewGrade{StudentID: r1.ID, Score: 10}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{name: "unknown id looks the same", path: "/v1/students/" + uuid.New().String(), token: token1, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "malformed id looks the same", path: "/v1/students/nope", token: token1, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "super_admin reads r1", path: r1Path, token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, r1)},
		{name: "support_admin without tenant sees nothing", path: r1Path, token: supportToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name: "super_admin creates nowhere", method: http.MethodPost, path: "/v1/students", token: adminToken,
			body:     marchallObj(t, records.NewStudent{Name: "Orphan"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonNoTenant}),
		},
		{name: "support_admin lists no tenant", path: "/v1/admin/tenants", token: supportToken, wantCode: http.StatusOK, wantData: []byte("[]")},
		{name: "no orphans", path: "/v1/admin/tenants/orphans", token: adminToken, wantCode: http.StatusOK, wantData: []byte("[]")},
	})

	req, rec := newAuthRequest(http.MethodGet, "/v1/admin/tenants?ordering=name", adminToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var tenants []tenant.Tenant
	decode(t, rec.Body.Bytes(), &tenants)
	ids := make([]uuid.UUID, 0, len(tenants))
	for _, tnt := range tenants {
		ids = append(ids, tnt.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{u1.TenantID.UUID, u2.TenantID.UUID}, ids)
}

func TestAPI_ordering(t *testing.T) {
	f := setup(t)
	token, _ := f.onboard(t, identity.Profile{Subject: "idp|owner", Email: "owner@test.test", Name: "Owner"})

	orderingErr := func(msg string) []byte {
		return marchallObj(t, map[string]string{"ordering": msg})
	}

	run(t, f, []httpTest{
		{name: "allowed fields", path: "/v1/students?ordering=-grade_level,name", token: token, wantCode: http.StatusOK, wantData: []byte("[]")},
		{name: "no ordering", path: "/v1/courses?ordering=", token: token, wantCode: http.StatusOK, wantData: []byte("[]")},
		{
			name: "unknown field", path: "/v1/students?ordering=term", token: token, wantCode: http.StatusBadRequest,
			wantData: orderingErr(`unknown field "term"; use one of: name, grade_level, created_at`),
		},
		{
			name: "column injection", path: "/v1/courses?ordering=name%3BDROP%20TABLE%20courses", token: token, wantCode: http.StatusBadRequest,
			wantData: orderingErr(`unknown field "name;DROP TABLE courses"; use one of: name, term, created_at`),
		},
		{
			name: "repeated field", path: "/v1/tenant/members?ordering=name,-name", token: token, wantCode: http.StatusBadRequest,
			wantData: orderingErr(`field "name" is repeated`),
		},
		{
			name: "empty field", path: "/v1/tenant/members?ordering=name,", token: token, wantCode: http.StatusBadRequest,
			wantData: orderingErr(`unknown field ""; use one of: name, email, role, created_at, last_login`),
		},
	})
}

func TestAPI_members(t *testing.T) {
	f := setup(t)

	ownerToken, owner := f.onboard(t, identity.Profile{Subject: "idp|owner", Email: "owner@test.test", Name: "Owner"})
	otherToken, _ := f.onboard(t, identity.Profile{Subject: "idp|other", Email: "other@test.test", Name: "Other"})
	kid := f.member(t, "kid", owner.TenantID.UUID, tenancy.RoleStudent)
	kidToken := getToken(t, f.conf, kid)

	kidPath := "/v1/accounts/" + kid.ID.String()

	req, rec := newAuthRequest(http.MethodGet, "/v1/tenant/members", ownerToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var members []account.Account
	decode(t, rec.Body.Bytes(), &members)
	assert.Len(t, members, 2)
	assert.NotContains(t, rec.Body.String(), "idp|") // subjects stay private

	run(t, f, []httpTest{
		{
			name: "tenant role only", method: http.MethodPut, path: kidPath + "/role", token: ownerToken,
			body: []byte(`{"role": "super_admin"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "not own role", method: http.MethodPut, path: "/v1/accounts/" + owner.ID.String() + "/role", token: ownerToken,
			body:     []byte(`{"role": "guardian"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: account.ErrOwnAccount.Error()}),
		},
		{
			name: "not in another tenant", method: http.MethodPut, path: kidPath + "/role", token: otherToken,
			body: []byte(`{"role": "guardian"}`), wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
		},
		{
			name: "student cannot manage", method: http.MethodPost, path: kidPath + "/deactivate", token: kidToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.PrimaryGuardianOrAdmin)),
		},
	})

	req, rec = newAuthRequest(http.MethodPut, kidPath+"/role", ownerToken, []byte(`{"role": " Guardian "}`))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var changed account.Account
	decode(t, rec.Body.Bytes(), &changed)
	assert.Equal(t, tenancy.RoleGuardian, changed.Role)

	req, rec = newAuthRequest(http.MethodPost, kidPath+"/deactivate", ownerToken)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.Contains(rec.Body.String(), `"is_active":false`))

	// the kid's session dies with the account
	req, rec = newAuthRequest(http.MethodGet, "/v1/students", kidToken)
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: tenancy.ReasonAccountDeactivated})}, rec)
}

func TestAPI_updateTenant(t *testing.T) {
	f := setup(t)
	ownerToken, owner := f.onboard(t, identity.Profile{Subject: "idp|owner", Email: "owner@test.test", Name: "Owner"})
	guardian := f.member(t, "gran", owner.TenantID.UUID, tenancy.RoleGuardian)

	req, rec := newAuthRequest(http.MethodPut, "/v1/tenant", ownerToken, []byte(`{"name": "The Amanis", "contact_email": "Family@Test.test"}`))
	f.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tnt tenant.Tenant
	decode(t, rec.Body.Bytes(), &tnt)
	assert.Equal(t, "The Amanis", tnt.Name)
	assert.Equal(t, "family@test.test", tnt.ContactEmail)

	req, rec = newAuthRequest(http.MethodPut, "/v1/tenant", getToken(t, f.conf, guardian), []byte(`{"name": "Mine"}`))
	f.app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, requiresOneOf(tenancy.PrimaryGuardianOrAdmin))}, rec)
}
