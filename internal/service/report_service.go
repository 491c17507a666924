package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
	"github.com/noah-isme/ensemble-api/pkg/export"
	"github.com/noah-isme/ensemble-api/pkg/jobs"
	"github.com/noah-isme/ensemble-api/pkg/storage"
)

type reportStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, file, token string, expiresAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type reportQueue interface {
	Enqueue(job jobs.Job) error
}

// ReportConfig tunes report rendering and retention.
type ReportConfig struct {
	ResultTTL time.Duration
}

// ReportService renders course exports asynchronously. A request creates a
// queued job row, workers render the file to local storage and the completed
// job carries a signed download token.
type ReportService struct {
	reports     reportStore
	courses     courseReader
	roster      rosterReader
	submissions submissionRepository
	storage     fileStorage
	signer      *storage.SignedURLSigner
	queue       reportQueue
	csv         csvRenderer
	pdf         pdfRenderer
	logger      *zap.Logger
	cfg         ReportConfig
}

// NewReportService constructs a ReportService. Attach the queue with SetQueue
// before serving requests.
func NewReportService(
	reports reportStore,
	courses courseReader,
	roster rosterReader,
	submissions submissionRepository,
	fileStore fileStorage,
	signer *storage.SignedURLSigner,
	csv csvRenderer,
	pdf pdfRenderer,
	logger *zap.Logger,
	cfg ReportConfig,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{
		reports:     reports,
		courses:     courses,
		roster:      roster,
		submissions: submissions,
		storage:     fileStore,
		signer:      signer,
		csv:         csv,
		pdf:         pdf,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetQueue attaches the worker queue. The queue handler calls back into
// Process, so the two are wired after construction.
func (s *ReportService) SetQueue(q reportQueue) {
	s.queue = q
}

// CreateReportRequest describes a report job request.
type CreateReportRequest struct {
	Kind         models.ReportKind `json:"kind" validate:"required"`
	PieceSlug    string            `json:"piece_slug"`
	ActivityName string            `json:"activity_name"`
}

// Enqueue validates the request, persists a queued job and hands it to the
// worker pool. Only course teachers may request reports.
func (s *ReportService) Enqueue(ctx context.Context, courseSlug string, req CreateReportRequest, claims *models.JWTClaims) (*models.ReportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	course, err := s.courses.FindBySlug(ctx, courseSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if err := s.requireTeacher(ctx, course.ID, claims); err != nil {
		return nil, err
	}

	switch req.Kind {
	case models.ReportKindRosterCSV:
	case models.ReportKindSubmissionsPDF:
		if req.PieceSlug == "" || req.ActivityName == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "missing piece_slug or activity_name")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report kind %q", req.Kind))
	}

	job := &models.ReportJob{
		CourseID:     course.ID,
		CourseSlug:   course.Slug,
		Kind:         req.Kind,
		PieceSlug:    req.PieceSlug,
		ActivityName: req.ActivityName,
		RequestedBy:  claims.UserID,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report queue not running")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Kind)}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}

	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("course_id", course.ID))
	return job, nil
}

// Process is the queue handler. It renders the job's dataset, stores the
// file and marks the row completed with a signed download token.
func (s *ReportService) Process(ctx context.Context, job jobs.Job) error {
	record, err := s.reports.FindByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", job.ID, err)
	}
	if record.Status == models.ReportStatusCompleted {
		return nil
	}
	if err := s.reports.MarkProcessing(ctx, record.ID); err != nil {
		return err
	}

	payload, filename, err := s.render(ctx, record)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record report failure", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		return err
	}

	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		if markErr := s.reports.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("failed to record report failure", zap.String("job_id", record.ID), zap.Error(markErr))
		}
		return err
	}

	token, expiresAt, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return err
	}
	if err := s.reports.MarkCompleted(ctx, record.ID, relPath, token, expiresAt); err != nil {
		return err
	}

	s.logger.Info("report job completed",
		zap.String("job_id", record.ID),
		zap.String("file", relPath))
	return nil
}

// Get returns a report job visible to its requesting teacher.
func (s *ReportService) Get(ctx context.Context, id string, claims *models.JWTClaims) (*models.ReportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.RequestedBy != claims.UserID && claims.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// Download validates a signed token and opens the referenced file.
func (s *ReportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	job, err := s.reports.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusCompleted || job.File != relPath {
		return nil, "", appErrors.ErrNotFound
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file missing")
	}
	return file, relPath, nil
}

// StartCleanup runs CleanupExpired on the given interval until ctx is
// cancelled, so expired report rows and files do not accumulate.
func (s *ReportService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.CleanupExpired(ctx); err != nil {
					s.logger.Warn("report cleanup failed", zap.Error(err))
				}
			}
		}
	}()
}

// CleanupExpired deletes rows and files past their download window.
func (s *ReportService) CleanupExpired(ctx context.Context) error {
	files, err := s.reports.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := s.storage.Delete(f); err != nil {
			s.logger.Warn("failed to delete expired report file", zap.String("file", f), zap.Error(err))
		}
	}
	if len(files) > 0 {
		s.logger.Info("expired reports cleaned", zap.Int("count", len(files)))
	}
	return nil
}

func (s *ReportService) render(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	switch job.Kind {
	case models.ReportKindRosterCSV:
		entries, err := s.roster.ListRoster(ctx, job.CourseID)
		if err != nil {
			return nil, "", err
		}
		dataset := export.Dataset{
			Headers: []string{"name", "username", "grade", "role", "instrument"},
		}
		for _, e := range entries {
			dataset.Rows = append(dataset.Rows, []string{e.Name, e.Username, e.Grade, string(e.Role), e.Instrument})
		}
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", err
		}
		return payload, s.filename(job, "csv"), nil

	case models.ReportKindSubmissionsPDF:
		details, err := s.submissions.ListLatestByEnrollment(ctx, job.CourseSlug, job.PieceSlug, job.ActivityName)
		if err != nil {
			return nil, "", err
		}
		dataset := export.Dataset{
			Headers: []string{"student", "username", "submitted", "content"},
		}
		for _, d := range details {
			dataset.Rows = append(dataset.Rows, []string{d.Name, d.Username, d.Submitted.Format(time.RFC3339), d.Content})
		}
		title := fmt.Sprintf("Latest submissions: %s / %s", job.PieceSlug, job.ActivityName)
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, "", err
		}
		return payload, s.filename(job, "pdf"), nil
	}
	return nil, "", fmt.Errorf("unsupported report kind %q", job.Kind)
}

func (s *ReportService) filename(job *models.ReportJob, ext string) string {
	kind := strings.ToLower(string(job.Kind))
	return fmt.Sprintf("%s/%s-%s.%s", job.CourseID, kind, job.ID, ext)
}

func (s *ReportService) requireTeacher(ctx context.Context, courseID string, claims *models.JWTClaims) error {
	if claims.Role == models.RoleAdmin {
		return nil
	}
	enrollment, err := s.roster.FindByUserAndCourse(ctx, claims.UserID, courseID)
	if err != nil {
		return appErrors.ErrForbidden
	}
	if enrollment.Role != models.EnrollmentRoleTeacher {
		return appErrors.ErrForbidden
	}
	return nil
}
