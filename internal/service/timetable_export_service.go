package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

// ExportPayload is the queued unit of export work.
type ExportPayload struct {
	RunID  string
	Format models.ExportFormat
}

type runReader interface {
	Get(ctx context.Context, runID string) (*dto.TimetableRunResponse, error)
}

// ExportJobStore persists export job state.
type ExportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	UpdateStatus(ctx context.Context, id string, status models.ExportStatus, files models.ExportFiles, errMsg *string, finishedAt *time.Time) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job[ExportPayload]) error
}

type exportMetrics interface {
	ObserveExport(format models.ExportFormat, status models.ExportStatus)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// TimetableExportConfig tunes export behaviour.
type TimetableExportConfig struct {
	APIPrefix     string
	DefaultFormat models.ExportFormat
	ResultTTL     time.Duration
}

// TimetableExportService queues run exports, renders them in the background and signs downloads.
type TimetableExportService struct {
	runs     runReader
	jobs     ExportJobStore
	queue    exportDispatcher
	storage  fileStorage
	signer   *storage.SignedURLSigner
	renderer *TimetableRenderer
	metrics  exportMetrics
	logger   *zap.Logger
	cfg      TimetableExportConfig
	now      func() time.Time
}

// NewTimetableExportService constructs the service. A nil job store keeps job state in memory.
func NewTimetableExportService(
	runs runReader,
	jobStore ExportJobStore,
	files fileStorage,
	signer *storage.SignedURLSigner,
	renderer *TimetableRenderer,
	metrics exportMetrics,
	logger *zap.Logger,
	cfg TimetableExportConfig,
) *TimetableExportService {
	if jobStore == nil {
		jobStore = newMemoryExportJobs()
	}
	if renderer == nil {
		renderer = NewTimetableRenderer(nil, nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.DefaultFormat.Valid() {
		cfg.DefaultFormat = models.ExportFormatXLSX
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &TimetableExportService{
		runs:     runs,
		jobs:     jobStore,
		storage:  files,
		signer:   signer,
		renderer: renderer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// AttachQueue sets the dispatcher jobs are sent to. The queue's handler is usually Handle.
func (s *TimetableExportService) AttachQueue(queue exportDispatcher) {
	s.queue = queue
}

// Request queues an export of runID in format, or the default format when empty.
func (s *TimetableExportService) Request(ctx context.Context, runID, format string) (*dto.ExportJobResponse, error) {
	f := s.cfg.DefaultFormat
	if format != "" {
		f = models.ExportFormat(strings.ToLower(format))
	}
	if !f.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}
	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}

	job := &models.ExportJob{
		ID:        uuid.NewString(),
		RunID:     runID,
		Format:    f,
		Status:    models.ExportStatusQueued,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job[ExportPayload]{ID: job.ID, Type: string(f), Payload: ExportPayload{RunID: runID, Format: f}}); err != nil {
		s.fail(ctx, job.ID, f, "failed to enqueue job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	s.observe(f, models.ExportStatusQueued)
	return s.toResponse(job)
}

// Status reports an export job with signed links once finished.
func (s *TimetableExportService) Status(ctx context.Context, exportID string) (*dto.ExportJobResponse, error) {
	job, err := s.jobs.FindByID(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return s.toResponse(job)
}

// Handle renders a queued export. Returned errors are retried by the queue.
func (s *TimetableExportService) Handle(ctx context.Context, job jobs.Job[ExportPayload]) error {
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.ExportStatusProcessing, nil, nil, nil); err != nil {
		return err
	}
	view, err := s.runs.Get(ctx, job.Payload.RunID)
	if err != nil {
		return err
	}
	rendered, err := s.renderer.Render(*view, job.Payload.Format, false)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrExportFailure.Code, appErrors.ErrExportFailure.Status, "failed to render timetables")
	}

	files := make(models.ExportFiles, 0, len(rendered))
	for _, file := range rendered {
		rel, err := s.storage.Save(path.Join(view.RunID, job.ID, file.Name), file.Data)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrExportFailure.Code, appErrors.ErrExportFailure.Status, "failed to store export file")
		}
		files = append(files, rel)
	}

	finished := s.now().UTC()
	if err := s.jobs.UpdateStatus(ctx, job.ID, models.ExportStatusFinished, files, nil, &finished); err != nil {
		s.logger.Warn("failed to mark export finished", zap.String("export_id", job.ID), zap.Error(err))
		return err
	}
	s.observe(job.Payload.Format, models.ExportStatusFinished)
	s.logger.Info("timetable export finished",
		zap.String("export_id", job.ID),
		zap.String("run_id", view.RunID),
		zap.Int("files", len(files)),
	)
	return nil
}

// GiveUp marks a job failed once the queue stops retrying it.
func (s *TimetableExportService) GiveUp(jobID string, cause error) {
	ctx := context.Background()
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		s.logger.Warn("failed to load abandoned export", zap.String("export_id", jobID), zap.Error(err))
		return
	}
	s.fail(ctx, jobID, job.Format, cause.Error())
}

// Open resolves a signed download token to the stored file.
func (s *TimetableExportService) Open(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return file, path.Base(relPath), nil
}

// Cleanup removes stored files older than the configured result TTL.
func (s *TimetableExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *TimetableExportService) fail(ctx context.Context, jobID string, format models.ExportFormat, msg string) {
	finished := s.now().UTC()
	if err := s.jobs.UpdateStatus(ctx, jobID, models.ExportStatusFailed, nil, &msg, &finished); err != nil {
		s.logger.Warn("failed to mark export failed", zap.String("export_id", jobID), zap.Error(err))
	}
	s.observe(format, models.ExportStatusFailed)
}

func (s *TimetableExportService) observe(format models.ExportFormat, status models.ExportStatus) {
	if s.metrics != nil {
		s.metrics.ObserveExport(format, status)
	}
}

func (s *TimetableExportService) toResponse(job *models.ExportJob) (*dto.ExportJobResponse, error) {
	resp := &dto.ExportJobResponse{
		ID:         job.ID,
		RunID:      job.RunID,
		Format:     job.Format,
		Status:     job.Status,
		Error:      job.ErrorMessage,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
	if job.Status != models.ExportStatusFinished {
		return resp, nil
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	for _, rel := range job.Files {
		token, expiresAt, err := s.signer.Generate(job.ID, rel)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
		}
		resp.Files = append(resp.Files, dto.ExportFileLink{
			Name:      path.Base(rel),
			URL:       fmt.Sprintf("%s/exports/download/%s", prefix, token),
			ExpiresAt: expiresAt,
		})
	}
	return resp, nil
}

// memoryExportJobs holds export job state when no database is configured.
type memoryExportJobs struct {
	mu   sync.RWMutex
	jobs map[string]models.ExportJob
}

func newMemoryExportJobs() *memoryExportJobs {
	return &memoryExportJobs{jobs: make(map[string]models.ExportJob)}
}

func (m *memoryExportJobs) Create(_ context.Context, job *models.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryExportJobs) UpdateStatus(_ context.Context, id string, status models.ExportStatus, files models.ExportFiles, errMsg *string, finishedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	job.Files = files
	job.ErrorMessage = errMsg
	job.FinishedAt = finishedAt
	m.jobs[id] = job
	return nil
}

func (m *memoryExportJobs) FindByID(_ context.Context, id string) (*models.ExportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &job, nil
}
