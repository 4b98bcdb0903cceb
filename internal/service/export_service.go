package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careops/hcadmin-api/internal/models"
	appErrors "github.com/careops/hcadmin-api/pkg/errors"
	"github.com/careops/hcadmin-api/pkg/export"
	"github.com/careops/hcadmin-api/pkg/jobs"
	"github.com/careops/hcadmin-api/pkg/storage"
)

var exportHeaders = []string{"ID", "User ID", "Action", "Table", "Record ID", "IP Address", "Created At"}

type exportAuditRepository interface {
	List(ctx context.Context, filter models.AuditQueryFilter, limit int) ([]models.AuditLog, error)
}

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	FindByID(ctx context.Context, id string) (*models.ExportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, filePath string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string, completedAt time.Time) error
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportServiceConfig tunes export behaviour.
type ExportServiceConfig struct {
	APIPrefix string
	MaxRows   int
	ResultTTL time.Duration
}

// ExportService generates audit log export files asynchronously. Jobs are
// persisted, processed by a worker queue, and downloaded through signed URLs.
type ExportService struct {
	auditLogs exportAuditRepository
	jobStore  exportJobStore
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	queue     *jobs.Queue
	logger    *zap.Logger
	cfg       ExportServiceConfig
}

// NewExportService constructs an ExportService.
func NewExportService(auditLogs exportAuditRepository, jobStore exportJobStore, store fileStorage, signer *storage.SignedURLSigner, cfg ExportServiceConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		auditLogs: auditLogs,
		jobStore:  jobStore,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// StartQueue spins up the worker pool consuming export jobs.
func (s *ExportService) StartQueue(ctx context.Context, cfg jobs.QueueConfig) {
	s.queue = jobs.NewQueue("audit-exports", s.handleJob, cfg)
	s.queue.Start(ctx)
}

// StopQueue drains the worker pool.
func (s *ExportService) StopQueue() {
	if s.queue != nil {
		s.queue.Stop()
	}
}

// Enqueue persists a new export job and schedules it for processing.
func (s *ExportService) Enqueue(ctx context.Context, requestedBy string, format models.ExportFormat, filter models.AuditQueryFilter) (*models.ExportJob, error) {
	if format != models.ExportFormatCSV && format != models.ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format: %s", format))
	}
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export workers are not running")
	}

	filtersPayload, err := json.Marshal(filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode export filters")
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		RequestedBy: requestedBy,
		Format:      format,
		Status:      models.ExportStatusPending,
		Filters:     filtersPayload,
	}

	if err := s.jobStore.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist export job")
	}

	if err := s.queue.Enqueue(jobs.Task{JobID: job.ID}); err != nil {
		now := time.Now().UTC()
		_ = s.jobStore.MarkFailed(ctx, job.ID, "failed to schedule job", now)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule export job")
	}

	return job, nil
}

// Status returns the job state. Completed jobs carry a signed download URL.
func (s *ExportService) Status(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.jobStore.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}

	if job.Status == models.ExportStatusDone && job.FilePath != "" {
		token, _, err := s.signer.Generate(job.ID, job.FilePath)
		if err != nil {
			s.logger.Warn("failed to sign export download url", zap.String("job_id", job.ID), zap.Error(err))
		} else {
			job.DownloadURL = fmt.Sprintf("%s/audit/exports/%s/download?token=%s", s.cfg.APIPrefix, job.ID, token)
		}
	}

	return job, nil
}

// Download validates the signed token and opens the stored export file.
func (s *ExportService) Download(ctx context.Context, jobID, token string) (*os.File, string, error) {
	tokenJobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil || tokenJobID != jobID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}

	job, err := s.jobStore.FindByID(ctx, jobID)
	if err != nil || job.Status != models.ExportStatusDone {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer exists")
	}

	contentType := "text/csv"
	if job.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	return file, contentType, nil
}

// Cleanup removes export files older than the result TTL.
func (s *ExportService) Cleanup() {
	deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(deleted) > 0 {
		s.logger.Info("export cleanup removed files", zap.Int("count", len(deleted)))
	}
}

func (s *ExportService) handleJob(ctx context.Context, task jobs.Task) error {
	record, err := s.jobStore.FindByID(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", task.JobID, err)
	}
	if record.Status == models.ExportStatusDone {
		return nil
	}

	if err := s.jobStore.MarkRunning(ctx, record.ID); err != nil {
		return err
	}

	var filter models.AuditQueryFilter
	if len(record.Filters) > 0 {
		if err := json.Unmarshal(record.Filters, &filter); err != nil {
			// Retrying cannot repair a corrupt snapshot.
			_ = s.jobStore.MarkFailed(ctx, record.ID, "invalid stored filters", time.Now().UTC())
			return nil
		}
	}

	entries, err := s.auditLogs.List(ctx, filter, s.cfg.MaxRows)
	if err != nil {
		return s.failTask(ctx, task, record.ID, fmt.Errorf("query audit logs for export %s: %w", record.ID, err))
	}

	dataset := buildExportDataset(entries)

	var payload []byte
	switch record.Format {
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Audit Log Export")
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		// Rendering is deterministic over the snapshot, so a retry would
		// fail the same way.
		_ = s.jobStore.MarkFailed(ctx, record.ID, err.Error(), time.Now().UTC())
		return nil
	}

	filename := fmt.Sprintf("audit/%s-%s.%s", time.Now().UTC().Format("20060102-150405"), record.ID, record.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return s.failTask(ctx, task, record.ID, fmt.Errorf("store export %s: %w", record.ID, err))
	}

	if err := s.jobStore.MarkDone(ctx, record.ID, relPath, time.Now().UTC()); err != nil {
		return err
	}

	s.logger.Info("audit export completed",
		zap.String("job_id", record.ID),
		zap.String("format", string(record.Format)),
		zap.Int("rows", len(entries)),
	)
	return nil
}

// failTask records a terminal failure only once the queue has no retries
// left. Transient failures keep the row RUNNING instead of flapping through
// FAILED and back on the status endpoint.
func (s *ExportService) failTask(ctx context.Context, task jobs.Task, jobID string, err error) error {
	if task.Final {
		if mErr := s.jobStore.MarkFailed(ctx, jobID, err.Error(), time.Now().UTC()); mErr != nil {
			s.logger.Warn("failed to mark export job failed", zap.String("job_id", jobID), zap.Error(mErr))
		}
	}
	return err
}

func buildExportDataset(entries []models.AuditLog) export.Dataset {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		userID := ""
		if entry.UserID != nil {
			userID = *entry.UserID
		}
		recordID := ""
		if entry.RecordID != nil {
			recordID = *entry.RecordID
		}
		rows = append(rows, []string{
			entry.ID,
			userID,
			entry.Action,
			entry.TableName,
			recordID,
			entry.IPAddress,
			entry.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	headers := make([]string, len(exportHeaders))
	copy(headers, exportHeaders)
	return export.Dataset{Headers: headers, Rows: rows}
}
