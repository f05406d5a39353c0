package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/announcehq/broadcastq/internal/dto"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) CreateJob(ctx context.Context, req *dto.JobCreateDTO) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *JobServiceMock) GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.JobResponseDTO)
	return resp, args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, queue string) ([]dto.JobResponseDTO, error) {
	args := m.Called(ctx, queue)

	jobs, _ := args.Get(0).([]dto.JobResponseDTO)
	return jobs, args.Error(1)
}

func (m *JobServiceMock) RetryJob(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *JobServiceMock) QueueStats(ctx context.Context, queue string) (*dto.QueueStatsDTO, error) {
	args := m.Called(ctx, queue)

	stats, _ := args.Get(0).(*dto.QueueStatsDTO)
	return stats, args.Error(1)
}
