package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/announcehq/broadcastq/common"
	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/internal/mocks"
	"github.com/announcehq/broadcastq/internal/models"
)

func TestJobService_CreateJob(t *testing.T) {
	tests := []struct {
		name       string
		req        dto.JobCreateDTO
		repoErr    error
		wantStatus int
	}{
		{
			name: "valid request",
			req: dto.JobCreateDTO{
				Queue:   config.QueueBroadcasts,
				Type:    config.JobTypeBroadcastSend,
				Payload: json.RawMessage(`{"broadcast_id":"b-1"}`),
			},
		},
		{
			name: "invalid payload json",
			req: dto.JobCreateDTO{
				Queue:   config.QueueBroadcasts,
				Type:    config.JobTypeBroadcastSend,
				Payload: json.RawMessage(`{"broadcast_id":`),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown queue",
			req: dto.JobCreateDTO{
				Queue:   "nonsense",
				Type:    config.JobTypeBroadcastSend,
				Payload: json.RawMessage(`{}`),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown job type",
			req: dto.JobCreateDTO{
				Queue:   config.QueueDefault,
				Type:    "mystery",
				Payload: json.RawMessage(`{}`),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "repository failure",
			req: dto.JobCreateDTO{
				Queue:   config.QueueDefault,
				Type:    config.JobTypeBroadcastSend,
				Payload: json.RawMessage(`{}`),
			},
			repoErr:    errors.New("db down"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mocks.JobRepoMock)
			if tt.wantStatus == 0 || tt.repoErr != nil {
				repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Job")).Return(tt.repoErr)
			}

			err := NewJobService(repo).CreateJob(context.Background(), &tt.req)

			if tt.wantStatus == 0 {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				apiErr, ok := err.(common.APIError)
				require.True(t, ok)
				assert.Equal(t, tt.wantStatus, apiErr.Status)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestJobService_CreateJob_DefaultsMaxAttempts(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	var created *models.Job
	repo.On("Create", mock.Anything, mock.AnythingOfType("*models.Job")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*models.Job)
		}).
		Return(nil)

	err := NewJobService(repo).CreateJob(context.Background(), &dto.JobCreateDTO{
		Queue:   config.QueueDefault,
		Type:    config.JobTypeBroadcastSend,
		Payload: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, 3, created.MaxAttempts)
}

func TestJobService_GetJobByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Get", mock.Anything, uint(7)).Return(&models.Job{
			ID:     7,
			Queue:  config.QueueBroadcasts,
			Type:   config.JobTypeBroadcastSend,
			Status: config.JobStatusCompleted,
		}, nil)

		resp, err := NewJobService(repo).GetJobByID(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, uint(7), resp.ID)
		assert.Equal(t, config.JobStatusCompleted, resp.Status)
	})

	t.Run("not found", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("Get", mock.Anything, uint(8)).Return(nil, gorm.ErrRecordNotFound)

		_, err := NewJobService(repo).GetJobByID(context.Background(), 8)
		require.Error(t, err)
		apiErr, ok := err.(common.APIError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	})
}

func TestJobService_ListJobs(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	repo.On("List", mock.Anything, config.QueueBroadcasts).Return([]models.Job{
		{ID: 1, Queue: config.QueueBroadcasts},
		{ID: 2, Queue: config.QueueBroadcasts},
	}, nil)

	jobs, err := NewJobService(repo).ListJobs(context.Background(), config.QueueBroadcasts)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, uint(1), jobs[0].ID)
}

func TestJobService_RetryJob(t *testing.T) {
	t.Run("resets the job", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("ResetForRetry", mock.Anything, uint(3)).Return(nil)

		require.NoError(t, NewJobService(repo).RetryJob(context.Background(), 3))
		repo.AssertExpectations(t)
	})

	t.Run("unknown job", func(t *testing.T) {
		repo := new(mocks.JobRepoMock)
		repo.On("ResetForRetry", mock.Anything, uint(4)).Return(gorm.ErrRecordNotFound)

		err := NewJobService(repo).RetryJob(context.Background(), 4)
		require.Error(t, err)
		apiErr, ok := err.(common.APIError)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
	})
}

func TestJobService_QueueStats(t *testing.T) {
	repo := new(mocks.JobRepoMock)
	repo.On("CountByStatus", mock.Anything, config.QueueBroadcasts).Return(map[string]int64{
		config.JobStatusPending:   2,
		config.JobStatusCompleted: 5,
	}, nil)

	stats, err := NewJobService(repo).QueueStats(context.Background(), config.QueueBroadcasts)
	require.NoError(t, err)
	assert.Equal(t, config.QueueBroadcasts, stats.Queue)
	assert.Equal(t, int64(2), stats.Counts[config.JobStatusPending])
	assert.Equal(t, int64(5), stats.Counts[config.JobStatusCompleted])
}
