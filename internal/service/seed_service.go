package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

// SeedResult reports what a seeding call changed.
type SeedResult struct {
	Affected int64    `json:"affected"`
	Skipped  []string `json:"skipped,omitempty"`
}

// SeedService loads accounts and enrollments for fresh environments.
type SeedService interface {
	SeedUsers(ctx context.Context, token string, users []models.User) (SeedResult, error)
	SeedEnrollments(ctx context.Context, token string, courseID uint, emails []string) (SeedResult, error)
}

type seedService struct {
	users   repository.UserRepository
	courses repository.CourseRepository
	catalog CatalogInvalidator
	enabled bool
	token   string
	logger  zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(users repository.UserRepository, courses repository.CourseRepository, catalog CatalogInvalidator, enabled bool, token string, logger zerolog.Logger) SeedService {
	if catalog == nil {
		catalog = noopCatalog{}
	}
	return &seedService{
		users:   users,
		courses: courses,
		catalog: catalog,
		enabled: enabled,
		token:   token,
		logger:  logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedUsers(ctx context.Context, token string, users []models.User) (SeedResult, error) {
	if err := s.guard(token); err != nil {
		return SeedResult{}, err
	}

	valid, skipped := normalizeUsers(users)
	affected, err := s.users.UpsertBatch(ctx, valid)
	if err != nil {
		return SeedResult{}, err
	}
	s.logger.Info().Int64("affected", affected).Int("skipped", len(skipped)).Msg("users seeded")
	return SeedResult{Affected: affected, Skipped: skipped}, nil
}

func (s *seedService) SeedEnrollments(ctx context.Context, token string, courseID uint, emails []string) (SeedResult, error) {
	if err := s.guard(token); err != nil {
		return SeedResult{}, err
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SeedResult{}, ErrCourseNotFound
		}
		return SeedResult{}, err
	}

	var result SeedResult
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		user, err := s.users.GetByEmail(ctx, email)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Skipped = append(result.Skipped, email)
			continue
		}
		if err != nil {
			return SeedResult{}, err
		}
		if err := s.courses.Enroll(ctx, courseID, user.ID); err != nil {
			return SeedResult{}, fmt.Errorf("enroll %s: %w", email, err)
		}
		s.catalog.Invalidate(ctx, user.ID)
		result.Affected++
	}

	s.logger.Info().Uint("course_id", courseID).Int64("affected", result.Affected).Msg("enrollments seeded")
	return result, nil
}

func (s *seedService) guard(token string) error {
	if !s.enabled {
		return ErrSeedDisabled
	}
	expected := strings.TrimSpace(s.token)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) != 1 {
		return ErrSeedUnauthorized
	}
	return nil
}

// normalizeUsers lowercases emails, defaults the role and drops rows without an email
// or with an unknown role.
func normalizeUsers(users []models.User) ([]models.User, []string) {
	valid := make([]models.User, 0, len(users))
	var skipped []string
	for _, user := range users {
		user.Email = strings.ToLower(strings.TrimSpace(user.Email))
		user.Name = strings.TrimSpace(user.Name)
		user.Role = strings.ToLower(strings.TrimSpace(user.Role))
		if user.Role == "" {
			user.Role = models.RoleStudent
		}
		switch {
		case user.Email == "":
			skipped = append(skipped, user.Name)
			continue
		case user.Role != models.RoleStudent && user.Role != models.RoleTeacher && user.Role != models.RoleAdmin:
			skipped = append(skipped, user.Email)
			continue
		}
		if user.Name == "" {
			user.Name = user.Email
		}
		user.ID = 0
		valid = append(valid, user)
	}
	return valid, skipped
}
