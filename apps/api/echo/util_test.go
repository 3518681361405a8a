package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	. "github.com/trezcool/homeroom/apps/api/echo"
	"github.com/trezcool/homeroom/core"
	"github.com/trezcool/homeroom/core/account"
	"github.com/trezcool/homeroom/core/identity"
	"github.com/trezcool/homeroom/core/records"
	"github.com/trezcool/homeroom/core/tenancy"
	"github.com/trezcool/homeroom/core/tenant"
	"github.com/trezcool/homeroom/storage/database/inmem"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fixture struct {
	app      *Server
	conf     *core.Config
	accRepo  account.Repository
	accounts *account.Service
}

func testConfig() *core.Config {
	return &core.Config{
		Env:       "TEST",
		AppName:   "Homeroom",
		TestMode:  true,
		SecretKey: "secret",
		Server: core.ServerConfig{
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			SignInRate:                1000,
			SignInBurst:               1000,
		},
		Identity: core.IdentityConfig{
			Issuer:     "https://id.test",
			Audience:   "homeroom",
			SigningKey: "idp-secret",
		},
	}
}

func setup(t *testing.T, confFns ...func(conf *core.Config)) fixture {
	t.Helper()

	conf := testConfig()
	for _, fn := range confFns {
		fn(conf)
	}

	db := inmemdb.Open()
	uow := inmemdb.NewUnitOfWork(db)
	tenantRepo := inmemdb.NewTenantRepository(db)
	f := fixture{
		conf:    conf,
		accRepo: inmemdb.NewAccountRepository(db),
	}
	f.accounts = account.NewService(f.accRepo, tenantRepo, uow)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)

	f.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		Validate:       validate,
		Translator:     translator,
		Identity:       identity.NewJWTProvider(conf.Identity),
		AccountSvc:     f.accounts,
		TenantSvc:      tenant.NewService(tenantRepo, uow),
		RecordsSvc:     records.NewService(inmemdb.NewRecordsRepository(db), uow),
		DisableReqLogs: true,
	})
	return f
}

// onboard signs prof in through the API and returns the session token & account.
func (f fixture) onboard(t *testing.T, prof identity.Profile) (string, account.Account) {
	t.Helper()
	assertion, err := identity.NewAssertion(f.conf.Identity, prof, time.Minute)
	if err != nil {
		t.Fatalf("onboard() failed: %v", err)
	}
	req, rec := newRequest(http.MethodPost, "/v1/auth/callback", marchallObj(t, CallbackRequest{Assertion: assertion}))
	f.app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("onboard() failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err = json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Account == nil {
		t.Fatalf("onboard() failed: %v", err)
	}
	return resp.Token, *resp.Account
}

// member creates an account bound to tenantID with role, behind the API's back.
func (f fixture) member(t *testing.T, name string, tenantID uuid.UUID, role tenancy.Role) account.Account {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	acc, err := f.accRepo.CreateAccount(ctx, account.Account{
		Subject:   "idp|" + name,
		Email:     name + "@test.test",
		Name:      name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err == nil && tenantID != uuid.Nil {
		acc, err = f.accRepo.BindTenant(ctx, acc.ID, tenantID, role)
	}
	if err != nil {
		t.Fatalf("member() failed: %v", err)
	}
	return acc
}

func getToken(t *testing.T, conf *core.Config, acc account.Account) string {
	token, err := GenerateToken(conf, NewClaims(conf, acc))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
