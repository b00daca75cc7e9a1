package httputil

import (
	"errors"
	"net/http"

	"github.com/gravitational/trace"

	"github.com/crewware/teamcore/pkg/lifecycle"
)

// WriteTraceError maps a service error onto an HTTP status. Partial
// departure failures are surfaced as 502 with the failed step so the
// caller knows the sweep will finish the job.
func WriteTraceError(w http.ResponseWriter, err error) {
	var partial *lifecycle.PartialFailureError
	if errors.As(err, &partial) {
		WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":     partial.Error(),
			"step":      string(partial.Step),
			"retryable": partial.Retryable,
		})
		return
	}

	switch {
	case trace.IsBadParameter(err):
		WriteBadRequest(w, trace.UserMessage(err))
	case trace.IsNotFound(err):
		WriteNotFoundError(w, trace.UserMessage(err))
	case trace.IsAccessDenied(err):
		WriteForbidden(w, trace.UserMessage(err))
	case trace.IsAlreadyExists(err):
		WriteConflict(w, trace.UserMessage(err))
	case trace.IsLimitExceeded(err):
		WriteTooManyRequests(w, trace.UserMessage(err))
	default:
		WriteInternalError(w, err)
	}
}
