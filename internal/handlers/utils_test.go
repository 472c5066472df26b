package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ustoz-edu/apiserver/internal/services"
	"github.com/ustoz-edu/apiserver/internal/store"
	"go.uber.org/zap"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		query               string
		page, limit, offset int
		wantErr             bool
	}{
		{query: "", page: 1, limit: defaultLimit, offset: 0},
		{query: "page=3&limit=10", page: 3, limit: 10, offset: 20},
		{query: "page=2&per_page=5", page: 2, limit: 5, offset: 5},
		{query: "limit=1000", page: 1, limit: maxLimit, offset: 0},
		{query: "page=0", wantErr: true},
		{query: "limit=abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
			page, limit, offset, err := parsePagination(r)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.page, page)
			assert.Equal(t, tc.limit, limit)
			assert.Equal(t, tc.offset, offset)
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := bearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = bearerToken(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer  abc.def ")
	token, err := bearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)
}

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{name: "validation", err: &services.ValidationError{Fields: map[string]string{"email": "bad"}}, status: http.StatusBadRequest, field: "email"},
		{name: "constraint", err: fmt.Errorf("create: %w", &store.ConstraintError{Constraint: "users_email_key", Field: "email"}), status: http.StatusConflict, field: "email"},
		{name: "not found", err: store.ErrNotFound, status: http.StatusNotFound},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, zap.NewNop(), tc.err, "thing not found", "failed")
			assert.Equal(t, tc.status, rec.Code)

			var body ValidationErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tc.field != "" {
				assert.Contains(t, body.Fields, tc.field)
			}
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "failed", body.Error)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	cases := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "1", want: 1},
		{raw: "2147483647", want: 2147483647},
		{raw: "2147483648", wantErr: true},
		{raw: "99999999999", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/users/"+tc.raw, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("userID", tc.raw)
			r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

			id, err := parseID(r, "userID", "user")
			if tc.wantErr {
				assert.EqualError(t, err, "invalid user id")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
}
