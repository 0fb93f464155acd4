package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/procurement-graph/internal/data/runs"
	"github.com/yungbote/procurement-graph/internal/http/response"
	"github.com/yungbote/procurement-graph/internal/pipeline"
	"github.com/yungbote/procurement-graph/internal/platform/apierr"
	"github.com/yungbote/procurement-graph/internal/platform/dbctx"
	"github.com/yungbote/procurement-graph/internal/platform/gcp"
	"github.com/yungbote/procurement-graph/internal/platform/logger"
)

// Runner is the part of the pipeline the HTTP surface drives.
type Runner interface {
	Rebuild(ctx context.Context, inputs []string) (*pipeline.Diagnostics, error)
	Verify(ctx context.Context) (*pipeline.Diagnostics, error)
}

type RunHandler struct {
	log    *logger.Logger
	runner Runner
	runs   runs.RunRepo
	inputs []string
	root   string

	// mu serialises pipeline runs; a second caller gets 409 instead of waiting.
	mu sync.Mutex
}

// NewRunHandler builds the handler. defaultInputs are used when a rebuild request names none.
// Inputs named in a request must be gs:// URIs, configured defaults, or local paths under
// inputRoot; an empty inputRoot allows no other local paths.
func NewRunHandler(log *logger.Logger, runner Runner, repo runs.RunRepo, defaultInputs []string, inputRoot string) *RunHandler {
	if inputRoot = strings.TrimSpace(inputRoot); inputRoot != "" {
		if abs, err := filepath.Abs(inputRoot); err == nil {
			inputRoot = abs
		}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RunHandler{
		log:    log.With("handler", "RunHandler"),
		runner: runner,
		runs:   repo,
		inputs: defaultInputs,
		root:   inputRoot,
	}
}

// allowInputs resolves request inputs, rejecting anything the handler may not open.
// Relative local paths resolve against the input root.
func (h *RunHandler) allowInputs(inputs []string) ([]string, error) {
	out := make([]string, 0, len(inputs))
	for _, raw := range inputs {
		in := strings.TrimSpace(raw)
		switch {
		case slices.Contains(h.inputs, in):
		case strings.HasPrefix(in, "gs://"):
			if _, key, ok := gcp.ParseURI(in); !ok || key == "" {
				return nil, fmt.Errorf("input %q is not a gs://bucket/object uri", raw)
			}
		case h.root != "" && !strings.Contains(in, "://"):
			p := in
			if !filepath.IsAbs(p) {
				p = filepath.Join(h.root, p)
			}
			p = filepath.Clean(p)
			rel, err := filepath.Rel(h.root, p)
			if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
				return nil, fmt.Errorf("input %q is outside the input root", raw)
			}
			in = p
		default:
			return nil, fmt.Errorf("input %q is not allowed; name a gs:// uri or a path under the input root", raw)
		}
		out = append(out, in)
	}
	return out, nil
}

type rebuildRequest struct {
	Inputs []string `json:"inputs"`
}

// POST /api/rebuild
func (h *RunHandler) Rebuild(c *gin.Context) {
	var req rebuildRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	inputs := h.inputs
	if len(req.Inputs) > 0 {
		allowed, err := h.allowInputs(req.Inputs)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "input_not_allowed", err)
			return
		}
		inputs = allowed
	}
	if len(inputs) == 0 {
		response.RespondError(c, http.StatusBadRequest, "no_inputs", errors.New("no inputs given and none configured"))
		return
	}
	if !h.mu.TryLock() {
		response.RespondError(c, http.StatusConflict, "run_in_progress", errors.New("a pipeline run is already in progress"))
		return
	}
	defer h.mu.Unlock()

	diag, err := h.runner.Rebuild(c.Request.Context(), inputs)
	if err != nil {
		h.log.Error("rebuild failed", "error", err)
		var se *pipeline.StepError
		if errors.As(err, &se) {
			response.RespondStepFailed(c, runIDOf(diag), err, diag)
			return
		}
		response.RespondErr(c, err)
		return
	}
	response.RespondRun(c, http.StatusOK, runIDOf(diag), gin.H{"diagnostics": diag})
}

// GET /api/integrity
func (h *RunHandler) Integrity(c *gin.Context) {
	if !h.mu.TryLock() {
		response.RespondError(c, http.StatusConflict, "run_in_progress", errors.New("a pipeline run is already in progress"))
		return
	}
	defer h.mu.Unlock()

	diag, err := h.runner.Verify(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondRun(c, http.StatusOK, diag.RunID, gin.H{"report": diag.Verify})
}

// GET /api/runs
func (h *RunHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "ledger_disabled", errors.New("run ledger not configured"))
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	list, err := h.runs.List(dbctx.New(c.Request.Context()), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"runs": list})
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "ledger_disabled", errors.New("run ledger not configured"))
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	dbc := dbctx.New(c.Request.Context())
	run, err := h.runs.Get(dbc, id)
	if errors.Is(err, runs.ErrNotFound) {
		response.RespondErr(c, apierr.New(http.StatusNotFound, "run_not_found", err))
		return
	}
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	events, err := h.runs.Events(dbc, id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondRun(c, http.StatusOK, id.String(), gin.H{"run": run, "events": events})
}

func runIDOf(diag *pipeline.Diagnostics) string {
	if diag == nil {
		return ""
	}
	return diag.RunID
}
