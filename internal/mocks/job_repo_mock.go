package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"

	"github.com/announcehq/broadcastq/internal/models"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) CreateBatch(ctx context.Context, jobs []*models.Job, delayPerJob time.Duration) error {
	args := m.Called(ctx, jobs, delayPerJob)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id uint) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) Claim(ctx context.Context, limit int) ([]models.Job, error) {
	args := m.Called(ctx, limit)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *JobRepoMock) RetryLater(ctx context.Context, id uint, attempts int, nextRetryAt time.Time, errMsg string) error {
	args := m.Called(ctx, id, attempts, nextRetryAt, errMsg)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id uint, attempts int, errMsg string) error {
	args := m.Called(ctx, id, attempts, errMsg)
	return args.Error(0)
}

func (m *JobRepoMock) ResetForRetry(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobRepoMock) RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, queue string) ([]models.Job, error) {
	args := m.Called(ctx, queue)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

func (m *JobRepoMock) CountByStatus(ctx context.Context, queue string) (map[string]int64, error) {
	args := m.Called(ctx, queue)

	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}
