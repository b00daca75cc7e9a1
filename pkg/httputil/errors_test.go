package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewware/teamcore/pkg/lifecycle"
)

func TestWriteTraceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad parameter", trace.BadParameter("bad"), http.StatusBadRequest},
		{"not found", trace.NotFound("missing"), http.StatusNotFound},
		{"access denied", trace.AccessDenied("nope"), http.StatusForbidden},
		{"already exists", trace.AlreadyExists("dup"), http.StatusConflict},
		{"limit exceeded", trace.LimitExceeded("slow down"), http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped not found", trace.Wrap(trace.NotFound("missing")), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteTraceError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestWriteTraceErrorPartialFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTraceError(rec, &lifecycle.PartialFailureError{
		DepartureID: "d-1",
		Step:        lifecycle.StepRevokeGrants,
		Retryable:   true,
		Err:         errors.New("db down"),
	})

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error     string `json:"error"`
		Step      string `json:"step"`
		Retryable bool   `json:"retryable"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(lifecycle.StepRevokeGrants), body.Step)
	assert.True(t, body.Retryable)
	assert.Contains(t, body.Error, "db down")
}
