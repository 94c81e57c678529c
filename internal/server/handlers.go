package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edgard/shamebot/internal/database"
)

// JobError describes a failed jobs request.
type JobError struct {
	Message string `json:"message"`
}

// JobsResponse wraps a trigger record. Data holds one record on success and
// is empty on failure.
type JobsResponse struct {
	Status int                      `json:"status"`
	Data   []database.TriggerRecord `json:"data"`
	Error  *JobError                `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	storeErr := s.store.Ping(c.Request.Context())
	schedulerOK := s.jobs.Healthy()
	if storeErr != nil || !schedulerOK {
		s.logger.WarnContext(c.Request.Context(), "Health check failed",
			"store_error", storeErr, "scheduler_healthy", schedulerOK)
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getJobs(c *gin.Context) {
	taskID, ok := s.taskID(c)
	if !ok {
		return
	}
	record, err := s.jobs.GetJobs(c.Request.Context(), taskID)
	s.respond(c, record, err)
}

func (s *Server) registerJobs(c *gin.Context) {
	taskID, ok := s.taskID(c)
	if !ok {
		return
	}
	record, err := s.jobs.RegisterAll(c.Request.Context(), taskID)
	s.respond(c, record, err)
}

func (s *Server) taskID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) respond(c *gin.Context, record database.TriggerRecord, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.ErrorContext(c.Request.Context(), "Jobs request failed", "path", c.Request.URL.Path, "error", err)
		writeError(c, http.StatusInternalServerError, err.Error())
	default:
		c.JSON(http.StatusOK, JobsResponse{
			Status: http.StatusOK,
			Data:   []database.TriggerRecord{record},
		})
	}
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, JobsResponse{
		Status: status,
		Data:   []database.TriggerRecord{},
		Error:  &JobError{Message: msg},
	})
}
