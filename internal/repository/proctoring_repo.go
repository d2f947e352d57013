package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// ViolationFilter narrows violation listings.
type ViolationFilter struct {
	AssessmentID *uint
	UserID       *uint
	SessionID    string
}

// ProctoringRepository stores proctoring sessions and their violations.
type ProctoringRepository interface {
	CreateSession(ctx context.Context, session *models.ProctoringSession) error
	GetSession(ctx context.Context, sessionID string) (models.ProctoringSession, error)
	EndSession(ctx context.Context, sessionID string, endedAt time.Time) (models.ProctoringSession, error)
	RecordViolation(ctx context.Context, violation *models.ProctoringViolation) (models.ProctoringSession, error)
	ListViolations(ctx context.Context, filter ViolationFilter) ([]models.ProctoringViolation, error)
	ListSessions(ctx context.Context, assessmentID uint) ([]models.ProctoringSession, error)
}

type proctoringRepository struct {
	db *gorm.DB
}

// NewProctoringRepository constructs the proctoring repository.
func NewProctoringRepository(db *gorm.DB) ProctoringRepository {
	return &proctoringRepository{db: db}
}

func (r *proctoringRepository) CreateSession(ctx context.Context, session *models.ProctoringSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *proctoringRepository) GetSession(ctx context.Context, sessionID string) (models.ProctoringSession, error) {
	var session models.ProctoringSession
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return models.ProctoringSession{}, err
	}
	return session, nil
}

func (r *proctoringRepository) EndSession(ctx context.Context, sessionID string, endedAt time.Time) (models.ProctoringSession, error) {
	var session models.ProctoringSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).First(&session).Error; err != nil {
			return err
		}
		if session.EndedAt != nil {
			return nil
		}
		session.EndedAt = &endedAt
		return tx.Model(&models.ProctoringSession{}).Where("session_id = ?", sessionID).Update("ended_at", endedAt).Error
	})
	return session, err
}

// RecordViolation appends the violation and folds it into the session summary.
func (r *proctoringRepository) RecordViolation(ctx context.Context, violation *models.ProctoringViolation) (models.ProctoringSession, error) {
	var session models.ProctoringSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("session_id = ?", violation.SessionID).
			First(&session).Error; err != nil {
			return err
		}

		if err := tx.Create(violation).Error; err != nil {
			return err
		}

		current := session.Counts()
		current[string(violation.Type)]++
		counts := make(datatypes.JSONMap, len(current))
		for key, value := range current {
			counts[key] = value
		}

		session.CountsByType = counts
		session.ViolationCount++
		if violation.Severity > session.HighestSeverity {
			session.HighestSeverity = violation.Severity
		}

		return tx.Model(&models.ProctoringSession{}).
			Where("session_id = ?", session.SessionID).
			Updates(map[string]any{
				"violation_count":  session.ViolationCount,
				"counts_by_type":   session.CountsByType,
				"highest_severity": session.HighestSeverity,
			}).Error
	})
	return session, err
}

func (r *proctoringRepository) ListViolations(ctx context.Context, filter ViolationFilter) ([]models.ProctoringViolation, error) {
	query := r.db.WithContext(ctx).Model(&models.ProctoringViolation{})
	if filter.AssessmentID != nil {
		query = query.Where("assessment_id = ?", *filter.AssessmentID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}

	var violations []models.ProctoringViolation
	if err := query.Order("timestamp ASC").Order("id ASC").Find(&violations).Error; err != nil {
		return nil, err
	}
	return violations, nil
}

func (r *proctoringRepository) ListSessions(ctx context.Context, assessmentID uint) ([]models.ProctoringSession, error) {
	var sessions []models.ProctoringSession
	if err := r.db.WithContext(ctx).
		Where("assessment_id = ?", assessmentID).
		Order("started_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}
