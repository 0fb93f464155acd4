package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/procurement-graph/internal/platform/apierr"
)

// RunIDKey is the gin context key carrying the pipeline run a request touched.
const RunIDKey = "run_id"

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps err through apierr; untyped errors become 500 "internal".
func RespondErr(c *gin.Context, err error) {
	RespondError(c, apierr.StatusCode(err), apierr.CodeOf(err), err)
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondRun writes payload with the run id attached and records the id on c for the
// request log.
func RespondRun(c *gin.Context, status int, runID string, payload gin.H) {
	if runID != "" {
		c.Set(RunIDKey, runID)
		payload["runId"] = runID
	}
	c.JSON(status, payload)
}

// RespondStepFailed reports a failed pipeline stage along with the diagnostics gathered
// before it.
func RespondStepFailed(c *gin.Context, runID string, err error, diagnostics any) {
	RespondRun(c, http.StatusInternalServerError, runID, gin.H{
		"error":       APIError{Message: err.Error(), Code: "step_failed"},
		"diagnostics": diagnostics,
	})
}
