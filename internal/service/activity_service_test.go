package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	filter  repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.filter = filter
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksSensitiveMetadata(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	ctx := middleware.ContextWithCorrelation(context.Background(), "req-7")
	entry, err := svc.Record(ctx, ActivityEntry{
		ActorID:    1,
		ActorRole:  "Admin",
		Action:     "Question.Updated",
		EntityType: "question",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"email":    "teacher@example.com",
			"solution": "print(1)",
			"field":    "title",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, "***", entry.Metadata["solution"])
	require.Equal(t, "title", entry.Metadata["field"])
	require.Equal(t, "admin", entry.ActorRole)
	require.Equal(t, "question.updated", entry.Action)
	require.Equal(t, "req-7", entry.CorrelationID)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())
	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "course"})
	require.Error(t, err)
}

func TestActivityServiceListPagination(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())
	for i := 0; i < 3; i++ {
		_, err := svc.Record(context.Background(), ActivityEntry{Action: "course.created", EntityType: "course"})
		require.NoError(t, err)
	}

	resp, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 2, EntityID: 9})
	require.NoError(t, err)
	require.Len(t, resp.Items, 3)
	require.Equal(t, 2, resp.Pagination.TotalPages)
	require.NotNil(t, repo.filter.EntityID)
	require.Equal(t, uint(9), *repo.filter.EntityID)
	require.Nil(t, repo.filter.ActorID)
}

func ptrUint(v uint) *uint {
	return &v
}
