package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/homeroom/core"
)

func TestAppHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantBody     map[string]interface{}
		wantShutdown bool
	}{
		{
			name:     "field errors",
			err:      errors.Wrap(core.NewFieldError("ordering", "field \"name\" is repeated"), "binding"),
			wantCode: http.StatusBadRequest,
			wantBody: map[string]interface{}{"ordering": "field \"name\" is repeated"},
		},
		{
			name:     "plain validation error",
			err:      core.NewValidationError(errors.New("nothing to update")),
			wantCode: http.StatusBadRequest,
			wantBody: map[string]interface{}{"error": "nothing to update"},
		},
		{
			name:     "server error",
			err:      errors.New("disk on fire"),
			wantCode: http.StatusInternalServerError,
			wantBody: map[string]interface{}{"error": http.StatusText(http.StatusInternalServerError)},
		},
		{
			name:         "storage gave up",
			err:          errors.Wrap(core.NewShutdownError("ambient state not cleared on 3 consecutive connections"), "listing students"),
			wantCode:     http.StatusInternalServerError,
			wantBody:     map[string]interface{}{"error": http.StatusText(http.StatusInternalServerError)},
			wantShutdown: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			shutdowns := 0
			handler := newAppHTTPErrorHandler(nopLogger{}, nil, func() { shutdowns++ })

			e := echo.New()
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			handler(tc.err, ctx)

			assert.Equal(t, tc.wantCode, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantBody, body)
			if tc.wantShutdown {
				assert.Equal(t, 1, shutdowns)
			} else {
				assert.Zero(t, shutdowns)
			}
		})
	}
}
