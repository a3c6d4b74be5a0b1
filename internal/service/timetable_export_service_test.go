package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	appErrors "github.com/noah-isme/timetable-engine/pkg/errors"
	"github.com/noah-isme/timetable-engine/pkg/jobs"
	"github.com/noah-isme/timetable-engine/pkg/storage"
)

func sampleRunView() dto.TimetableRunResponse {
	term := func(id, semester string) dto.TermTimetableView {
		return dto.TermTimetableView{
			ID: id, Semester: semester, Room: "B-204", StudentCount: 60,
			TermStart: "01/08/2024", TermEnd: "30/11/2024", OutputName: semester, Phase: "DONE",
			Columns: []string{"9:00-9:55", "12:00-13:50"},
			Days: []dto.TimetableDayView{
				{Day: "Monday", Cells: []dto.TimetableCellView{{Slot: "9:00-9:55", Label: "Math (Theory) - T1"}}},
				{Day: "Tuesday", Cells: []dto.TimetableCellView{{Slot: "12:00-13:50", Label: "Chem (Lab) - T3 (batch1 & batch2)"}}},
			},
		}
	}
	return dto.TimetableRunResponse{
		RunID:      "run-1",
		Status:     models.RunStatusCompleted,
		Timetables: []dto.TermTimetableView{term("tt-1", "Semester 3"), term("tt-2", "Semester 5")},
	}
}

type exportFixture struct {
	svc     *TimetableExportService
	queue   *dispatcherStub
	metrics *exportMetricsStub
	store   *storage.LocalStorage
}

func newExportFixture(t *testing.T) exportFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	runs := &runReaderStub{views: map[string]dto.TimetableRunResponse{"run-1": sampleRunView()}}
	metrics := &exportMetricsStub{}
	svc := NewTimetableExportService(runs, nil, files, storage.NewSignedURLSigner("secret", time.Hour), nil, metrics, zap.NewNop(), TimetableExportConfig{APIPrefix: "/api/v1"})
	queue := &dispatcherStub{}
	svc.AttachQueue(queue)
	return exportFixture{svc: svc, queue: queue, metrics: metrics, store: files}
}

func TestTimetableExportServiceLifecycle(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Request(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatXLSX, resp.Format)
	assert.Equal(t, models.ExportStatusQueued, resp.Status)
	require.Len(t, fx.queue.jobs, 1)
	assert.Equal(t, resp.ID, fx.queue.jobs[0].ID)

	require.NoError(t, fx.svc.Handle(ctx, fx.queue.jobs[0]))

	status, err := fx.svc.Status(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, status.Status)
	require.Len(t, status.Files, 1)
	assert.Equal(t, "timetables.xlsx", status.Files[0].Name)
	assert.True(t, strings.HasPrefix(status.Files[0].URL, "/api/v1/exports/download/"))

	token := strings.TrimPrefix(status.Files[0].URL, "/api/v1/exports/download/")
	file, name, err := fx.svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "timetables.xlsx", name)

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer book.Close()
	assert.Equal(t, []string{"Semester 3", "Semester 5"}, book.GetSheetList())

	assert.Equal(t, []models.ExportStatus{models.ExportStatusQueued, models.ExportStatusFinished}, fx.metrics.statuses)
}

func TestTimetableExportServiceCSVPerTerm(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Request(ctx, "run-1", "CSV")
	require.NoError(t, err)
	require.NoError(t, fx.svc.Handle(ctx, fx.queue.jobs[0]))

	status, err := fx.svc.Status(ctx, resp.ID)
	require.NoError(t, err)
	require.Len(t, status.Files, 2)
	assert.Equal(t, "Semester_3.csv", status.Files[0].Name)
	assert.Equal(t, "Semester_5.csv", status.Files[1].Name)
}

func TestTimetableExportServiceRejectsUnknownFormatAndRun(t *testing.T) {
	fx := newExportFixture(t)

	_, err := fx.svc.Request(context.Background(), "run-1", "docx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnsupportedFormat.Code, appErrors.FromError(err).Code)

	_, err = fx.svc.Request(context.Background(), "run-x", "pdf")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.queue.jobs)
}

func TestTimetableExportServiceEnqueueFailureMarksFailed(t *testing.T) {
	fx := newExportFixture(t)
	fx.queue.err = errors.New("queue stopped")

	_, err := fx.svc.Request(context.Background(), "run-1", "pdf")
	require.Error(t, err)
	assert.Equal(t, []models.ExportStatus{models.ExportStatusFailed}, fx.metrics.statuses)
}

func TestTimetableExportServiceGiveUp(t *testing.T) {
	fx := newExportFixture(t)
	ctx := context.Background()

	resp, err := fx.svc.Request(ctx, "run-1", "pdf")
	require.NoError(t, err)
	fx.svc.GiveUp(resp.ID, errors.New("render failed"))

	status, err := fx.svc.Status(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFailed, status.Status)
	require.NotNil(t, status.Error)
	assert.Equal(t, "render failed", *status.Error)
	assert.Empty(t, status.Files)
}

func TestTimetableExportServiceOpenRejectsBadTokens(t *testing.T) {
	fx := newExportFixture(t)

	_, _, err := fx.svc.Open("garbage")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	token, _, err := storage.NewSignedURLSigner("secret", time.Hour).Generate("exp-1", "run-1/missing.csv")
	require.NoError(t, err)
	_, _, err = fx.svc.Open(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableExportServiceWithQueue(t *testing.T) {
	fx := newExportFixture(t)
	queue := jobs.NewQueue[ExportPayload]("exports", fx.svc.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 1, RetryDelay: 10 * time.Millisecond, OnGiveUp: fx.svc.GiveUp})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	fx.svc.AttachQueue(queue)

	resp, err := fx.svc.Request(context.Background(), "run-1", "pdf")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := fx.svc.Status(context.Background(), resp.ID)
		return err == nil && status.Status == models.ExportStatusFinished
	}, 2*time.Second, 10*time.Millisecond)
}

// --- Fixtures ---

type runReaderStub struct {
	views map[string]dto.TimetableRunResponse
}

func (r *runReaderStub) Get(_ context.Context, runID string) (*dto.TimetableRunResponse, error) {
	view, ok := r.views[runID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
	}
	return &view, nil
}

type dispatcherStub struct {
	jobs []jobs.Job[ExportPayload]
	err  error
}

func (d *dispatcherStub) Enqueue(job jobs.Job[ExportPayload]) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type exportMetricsStub struct {
	mu       sync.Mutex
	statuses []models.ExportStatus
}

func (m *exportMetricsStub) ObserveExport(_ models.ExportFormat, status models.ExportStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}
