// README: Error-mapping and query parsing tests.
package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"hemolink/internal/apperr"
)

func TestWriteError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Wrap(apperr.ErrValidation, "bad input"), http.StatusBadRequest},
		{apperr.Wrap(apperr.ErrNotFound, "no such row"), http.StatusNotFound},
		{apperr.Wrap(apperr.ErrPreconditionFailed, "wrong state"), http.StatusConflict},
		{apperr.Wrap(apperr.ErrConflict, "duplicate"), http.StatusConflict},
		{apperr.Wrap(apperr.ErrForbidden, "not yours"), http.StatusForbidden},
		{apperr.Wrap(apperr.ErrUpstream, "db down"), http.StatusBadGateway},
		{http.ErrBodyNotAllowed, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tc.err)
		if w.Code != tc.want {
			t.Errorf("writeError(%v) = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestQueryPoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newCtx := func(query string) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/x?"+query, nil)
		return c
	}

	if p := queryPoint(newCtx("lat=25.03&lng=121.56")); p == nil || p.Lat != 25.03 || p.Lng != 121.56 {
		t.Fatalf("expected parsed point, got %+v", p)
	}
	if p := queryPoint(newCtx("lat=25.03")); p != nil {
		t.Fatalf("half a coordinate must not form a point, got %+v", p)
	}
	if p := queryPoint(newCtx("lat=abc&lng=121.56")); p != nil {
		t.Fatalf("malformed lat must not form a point, got %+v", p)
	}
	if p := queryPoint(newCtx("")); p != nil {
		t.Fatalf("missing coordinates must yield nil, got %+v", p)
	}
}
