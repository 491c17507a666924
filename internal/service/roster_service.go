package service

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/ensemble-api/internal/dto"
	"github.com/noah-isme/ensemble-api/internal/models"
	appErrors "github.com/noah-isme/ensemble-api/pkg/errors"
)

// rosterRowFields is the fixed CSV column count: name, username, password, grade.
const rosterRowFields = 4

// reasonWrongPassword marks rows whose username exists with another credential.
const reasonWrongPassword = "Wrong password"

type rosterUserRepository interface {
	FindByUsernames(ctx context.Context, usernames []string) (map[string]models.User, error)
}

type rosterApplier interface {
	Apply(ctx context.Context, courseID string, newUsers []models.User, userIDs []string) ([]models.Enrollment, []models.Enrollment, error)
}

type rosterCourseReader interface {
	FindBySlug(ctx context.Context, slug string) (*models.Course, error)
}

// RosterService reconciles bulk roster uploads against existing users and
// enrollments.
type RosterService struct {
	users   rosterUserRepository
	roster  rosterApplier
	courses rosterCourseReader
	logger  *zap.Logger
	maxRows int
}

// NewRosterService constructs RosterService.
func NewRosterService(users rosterUserRepository, roster rosterApplier, courses rosterCourseReader, logger *zap.Logger, maxRows int) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRows <= 0 {
		maxRows = 500
	}
	return &RosterService{users: users, roster: roster, courses: courses, logger: logger, maxRows: maxRows}
}

// ParseRoster reads CSV records of exactly four ordered fields per row.
func (s *RosterService) ParseRoster(r io.Reader) ([]dto.RosterRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = rosterRowFields
	reader.TrimLeadingSpace = true

	var rows []dto.RosterRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "malformed roster csv")
		}
		rows = append(rows, dto.RosterRow{
			Name:     record[0],
			Username: record[1],
			Password: record[2],
			Grade:    record[3],
		})
		if len(rows) > s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster exceeds %d rows", s.maxRows))
		}
	}
	return rows, nil
}

// Reconcile partitions the uploaded rows into created, existing and invalid
// users, then ensures every created or existing user is enrolled in the
// course as a student. All writes happen in a single transaction; a rerun of
// an already-processed batch creates nothing and reports every well-formed
// row as existing.
func (s *RosterService) Reconcile(ctx context.Context, courseSlug string, rows []dto.RosterRow) (*dto.RosterResult, error) {
	course, err := s.courses.FindBySlug(ctx, courseSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	usernames := make([]string, 0, len(rows))
	for _, row := range rows {
		usernames = append(usernames, row.Username)
	}
	known, err := s.users.FindByUsernames(ctx, usernames)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up users")
	}

	result := &dto.RosterResult{
		Users: dto.RosterUsers{
			Created:  []models.User{},
			Existing: []models.User{},
			Invalid:  []dto.InvalidRosterRow{},
		},
		Enrollments: dto.RosterEnrollments{
			Created:  []models.Enrollment{},
			Existing: []models.Enrollment{},
		},
	}

	var newUsers []models.User
	now := time.Now().UTC()
	for _, row := range rows {
		if user, ok := known[row.Username]; ok {
			if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(row.Password)) == nil {
				result.Users.Existing = append(result.Users.Existing, user)
			} else {
				result.Users.Invalid = append(result.Users.Invalid, dto.InvalidRosterRow{RosterRow: row, Reason: reasonWrongPassword})
			}
			continue
		}

		hash, err := HashPassword(row.Password)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user := models.User{
			ID:           uuid.NewString(),
			Username:     row.Username,
			Name:         row.Name,
			PasswordHash: hash,
			Grade:        row.Grade,
			Role:         models.RoleStudent,
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		newUsers = append(newUsers, user)
		result.Users.Created = append(result.Users.Created, user)
		// A repeated username later in the same upload is compared against
		// the row that created it, not re-created.
		known[row.Username] = user
	}

	// Enrollment pass covers created users first, then existing ones.
	userIDs := make([]string, 0, len(result.Users.Created)+len(result.Users.Existing))
	for _, u := range result.Users.Created {
		userIDs = append(userIDs, u.ID)
	}
	for _, u := range result.Users.Existing {
		userIDs = append(userIDs, u.ID)
	}

	created, existing, err := s.roster.Apply(ctx, course.ID, newUsers, userIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply roster")
	}
	if created != nil {
		result.Enrollments.Created = created
	}
	if existing != nil {
		result.Enrollments.Existing = existing
	}

	s.logger.Info("roster_reconciled",
		zap.String("course", course.Slug),
		zap.Int("rows", len(rows)),
		zap.Int("users_created", len(result.Users.Created)),
		zap.Int("users_existing", len(result.Users.Existing)),
		zap.Int("users_invalid", len(result.Users.Invalid)),
		zap.Int("enrollments_created", len(result.Enrollments.Created)),
	)

	return result, nil
}
