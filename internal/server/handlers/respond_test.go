package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/freshledger/internal/domain/models"
	"github.com/mamadbah2/freshledger/internal/service/bulk"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSessionMiddleware(t *testing.T) {
	cases := []struct {
		name   string
		auth   string
		admin  bool
		person string
	}{
		{"admin token", "Bearer s3cret", true, "priya"},
		{"wrong token", "Bearer guess", false, "priya"},
		{"no token", "", false, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			var got models.Session
			r.GET("/", SessionMiddleware("s3cret"), func(c *gin.Context) {
				got = sessionFrom(c)
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			if tc.person != "" {
				req.Header.Set("X-Operator", tc.person)
			}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if got.IsAdmin() != tc.admin || got.Operator != tc.person {
				t.Errorf("unexpected session %+v", got)
			}
		})
	}
}

func TestWriteErrorStatus(t *testing.T) {
	cases := map[error]int{
		models.NewValidationError("date", "bad"):                     http.StatusBadRequest,
		models.ErrForbidden:                                          http.StatusForbidden,
		fmt.Errorf("get: %w", models.ErrNotFound):                    http.StatusNotFound,
		fmt.Errorf("create: %w", models.ErrAlreadyExists):            http.StatusConflict,
		bulk.ErrDuplicateRequest:                                     http.StatusConflict,
		models.Transient("upsert", errors.New("connection refused")): http.StatusServiceUnavailable,
		errors.New("boom"):                                           http.StatusInternalServerError,
	}

	for err, want := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, zap.NewNop(), err)
		if w.Code != want {
			t.Errorf("%v: got %d, want %d", err, w.Code, want)
		}
	}
}
