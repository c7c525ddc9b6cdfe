package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("rbac: staff 9: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("rbac: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("rbac: %w", ErrForbidden), http.StatusForbidden},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("pool closed"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("password=hunter2"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Detail)
	assert.Equal(t, http.StatusInternalServerError, body.Status)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"module":"students","extra":1}`))
	var target struct {
		Module string `json:"module"`
	}
	err := DecodeJSON(req, &target)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, http.StatusBadRequest, StatusFor(err))
}

func TestDecodeJSONRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"module":"students"} {"module":"fees"}`))
	var target struct {
		Module string `json:"module"`
	}
	assert.ErrorIs(t, DecodeJSON(req, &target), ErrValidation)

	req = httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{\"module\":\"students\"}\n"))
	require.NoError(t, DecodeJSON(req, &target))
	assert.Equal(t, "students", target.Module)
}
