package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/internal/models"
)

// JobRepoInterface defines the contract for job repository operations.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	CreateBatch(ctx context.Context, jobs []*models.Job, delayPerJob time.Duration) error
	Get(ctx context.Context, id uint) (*models.Job, error)
	Claim(ctx context.Context, limit int) ([]models.Job, error)
	MarkCompleted(ctx context.Context, id uint, result datatypes.JSON) error
	RetryLater(ctx context.Context, id uint, attempts int, nextRetryAt time.Time, errMsg string) error
	MarkFailed(ctx context.Context, id uint, attempts int, errMsg string) error
	ResetForRetry(ctx context.Context, id uint) error
	RequeueStuck(ctx context.Context, olderThan time.Duration) (int64, error)
	List(ctx context.Context, queue string) ([]models.Job, error)
	CountByStatus(ctx context.Context, queue string) (map[string]int64, error)
}

// JobServiceInterface defines the contract for job business logic operations.
type JobServiceInterface interface {
	CreateJob(ctx context.Context, dto *dto.JobCreateDTO) error
	GetJobByID(ctx context.Context, id uint) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, queue string) ([]dto.JobResponseDTO, error)
	RetryJob(ctx context.Context, id uint) error
	QueueStats(ctx context.Context, queue string) (*dto.QueueStatsDTO, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Retry(c *gin.Context)
	Stats(c *gin.Context)
}
