package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

type timetableGenerator interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRunResponse, error)
	Get(ctx context.Context, runID string) (*dto.TimetableRunResponse, error)
}

type timetableExporter interface {
	Request(ctx context.Context, runID, format string) (*dto.ExportJobResponse, error)
	Status(ctx context.Context, exportID string) (*dto.ExportJobResponse, error)
	Open(token string) (*os.File, string, error)
}

// TimetableHandler exposes timetable generation and export endpoints.
type TimetableHandler struct {
	timetables timetableGenerator
	exports    timetableExporter
	logger     *zap.Logger
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(timetables timetableGenerator, exports timetableExporter, logger *zap.Logger) *TimetableHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableHandler{timetables: timetables, exports: exports, logger: logger}
}

// Generate godoc
// @Summary Generate weekly timetables for one or more terms
// @Description Terms are scheduled in order against one shared teacher ledger. Set export to queue a file export of the result.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /timetables [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	run, err := h.timetables.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		h.logger.Info("timetable run requested", zap.String("user_id", claims.UserID), zap.String("run_id", run.RunID))
	}
	if !req.Export {
		response.Created(c, run)
		return
	}

	job, err := h.exports.Request(c.Request.Context(), run.RunID, req.Format)
	if err != nil {
		h.logger.Warn("export request after generation failed", zap.String("run_id", run.RunID), zap.Error(err))
		response.Created(c, run, map[string]interface{}{"exportError": appErrors.FromError(err).Message})
		return
	}
	run.Export = job
	response.Created(c, run)
}

// Get godoc
// @Summary Get a generated timetable run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	run, err := h.timetables.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run)
}

// RequestExport godoc
// @Summary Queue an export of a timetable run
// @Tags Exports
// @Accept json
// @Produce json
// @Param id path string true "Run ID"
// @Param payload body dto.CreateExportRequest false "Export format"
// @Success 202 {object} response.Envelope
// @Router /timetables/{id}/exports [post]
func (h *TimetableHandler) RequestExport(c *gin.Context) {
	var req dto.CreateExportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
			return
		}
	}
	job, err := h.exports.Request(c.Request.Context(), c.Param("id"), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Get export job status and download links
// @Tags Exports
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *TimetableHandler) ExportStatus(c *gin.Context) {
	job, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job)
}

// Download godoc
// @Summary Download an exported timetable file
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /exports/download/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	file, name, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	size := int64(-1)
	if info, statErr := file.Stat(); statErr == nil {
		size = info.Size()
	}
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, size, contentType, io.Reader(file), nil)
}
