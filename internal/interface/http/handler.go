package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	"github.com/yanqian/qa-trainer/internal/domain/training"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// RunService is the subset of the training service exposed over HTTP.
type RunService interface {
	Validate(ctx context.Context, data []byte, checkPaths bool) (experiment.Config, error)
	Submit(ctx context.Context, req training.SubmitRequest) (training.Run, error)
	Get(ctx context.Context, id uuid.UUID) (training.Run, error)
	List(ctx context.Context, filter training.RunFilter) ([]training.Run, error)
}

// RunHandler serves configuration validation and training runs.
type RunHandler struct {
	svc          RunService
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewRunHandler constructs the handler.
func NewRunHandler(svc RunService, maxBodyBytes int64, logger *slog.Logger) *RunHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &RunHandler{
		svc:          svc,
		maxBodyBytes: maxBodyBytes,
		logger:       logger.With("component", "http.runs"),
	}
}

type validateResponse struct {
	Valid  bool              `json:"valid"`
	Config experiment.Config `json:"config"`
}

// ValidateConfig parses the request body as an experiment configuration.
func (h *RunHandler) ValidateConfig(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	checkPaths, _ := strconv.ParseBool(c.Query("check_paths"))
	cfg, err := h.svc.Validate(c.Request.Context(), body, checkPaths)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, validateResponse{Valid: true, Config: cfg})
}

// SubmitRun stores the configuration and queues a training run.
func (h *RunHandler) SubmitRun(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}
	run, err := h.svc.Submit(c.Request.Context(), training.SubmitRequest{
		Name:   c.Query("name"),
		Config: body,
	})
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	h.logger.Info("run accepted", "run_id", run.ID, "model_class", run.ModelClass)
	c.JSON(http.StatusAccepted, run)
}

// ListRuns returns runs, optionally filtered by a comma separated status list.
func (h *RunHandler) ListRuns(c *gin.Context) {
	var filter training.RunFilter
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := training.RunStatus(strings.TrimSpace(part))
			if !status.Valid() {
				abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "unknown status "+string(status), nil))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "limit must be a non-negative integer", err))
			return
		}
		filter.Limit = limit
	}
	runs, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun returns one run.
func (h *RunHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "run id must be a UUID", err))
		return
	}
	run, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, fromAppError(err))
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodyBytes+1))
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return nil, false
	}
	if int64(len(body)) > h.maxBodyBytes {
		abortWithError(c, NewHTTPError(http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", nil))
		return nil, false
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "request body is empty", nil))
		return nil, false
	}
	return body, true
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
