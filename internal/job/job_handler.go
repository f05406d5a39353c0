package job

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/announcehq/broadcastq/common"
	"github.com/announcehq/broadcastq/internal/dto"
	"github.com/announcehq/broadcastq/middleware"
)

type JobHandler struct {
	service JobServiceInterface
}

func NewJobHandler(s JobServiceInterface) *JobHandler {
	return &JobHandler{service: s}
}

var _ JobHandlerInterface = (*JobHandler)(nil)

// Create handles HTTP requests for enqueuing a new job.
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.JobCreateDTO

	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	if err := h.service.CreateJob(c.Request.Context(), &req); err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, req)
}

// Get handles HTTP requests to fetch a job by its ID.
func (h *JobHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	resp, err := h.service.GetJobByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// List handles HTTP requests to retrieve all jobs for a given queue.
func (h *JobHandler) List(c *gin.Context) {
	queue := c.Query("queue")
	if queue == "" {
		c.JSON(http.StatusBadRequest, common.APIError{Message: "queue parameter is required"})
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), queue)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// Retry handles manual retry of a failed job.
func (h *JobHandler) Retry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.RetryJob(c.Request.Context(), id); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Stats returns the per-status job counts of a queue.
func (h *JobHandler) Stats(c *gin.Context) {
	queue := c.Param("queue")

	stats, err := h.service.QueueStats(c.Request.Context(), queue)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return 0, false
	}
	return uint(id), true
}
