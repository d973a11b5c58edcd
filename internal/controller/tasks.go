package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"task-tracker/internal/models"
	"task-tracker/internal/service"
	"task-tracker/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TaskController exposes TaskService over JSON. Every input arrives in the request body.
type TaskController struct {
	svc *service.TaskService
}

// NewTaskController returns a controller backed by svc.
func NewTaskController(svc *service.TaskService) *TaskController {
	return &TaskController{svc: svc}
}

type createTaskRequest struct {
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Deadline    string `json:"deadline"`
	CategoryID  *int64 `json:"category_id"`
}

type stageRequest struct {
	TaskID    int64         `json:"task_id"`
	Completed completedFlag `json:"completed"`
}

// completedFlag accepts true/false as well as plain integers, which are stored as sent.
type completedFlag int

func (f *completedFlag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	case "null":
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = completedFlag(n)
	return nil
}

// filterRequest names the category "category", while creation calls it "category_id".
type filterRequest struct {
	UserID   int64 `json:"user_id"`
	Category int64 `json:"category"`
}

type userRequest struct {
	UserID int64 `json:"user_id"`
}

type taskRequest struct {
	TaskID int64 `json:"task_id"`
}

// CreateTask validates the deadline and stores a new uncompleted task.
func (tc *TaskController) CreateTask(c *gin.Context) {
	var body createTaskRequest
	if !bind(c, &body) {
		return
	}
	task, err := tc.svc.CreateTask(c.Request.Context(), service.CreateTaskInput{
		UserID:      body.UserID,
		Name:        body.Name,
		Description: body.Description,
		Deadline:    body.Deadline,
		CategoryID:  body.CategoryID,
	})
	if err != nil {
		respondError(c, "CreateTask", err)
		return
	}
	logger.Info(c.Request.Context(), "Task created", "task_id", task.ID, "user_id", task.UserID)
	c.JSON(http.StatusOK, task)
}

// UpdateTaskStage sets the completed flag of a task.
func (tc *TaskController) UpdateTaskStage(c *gin.Context) {
	var body stageRequest
	if !bind(c, &body) {
		return
	}
	res, err := tc.svc.UpdateTaskStage(c.Request.Context(), body.TaskID, int(body.Completed))
	if err != nil {
		respondError(c, "UpdateTaskStage", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAllUserTasksByFilter lists a user's tasks of one category.
func (tc *TaskController) GetAllUserTasksByFilter(c *gin.Context) {
	var body filterRequest
	if !bind(c, &body) {
		return
	}
	tasks, err := tc.svc.GetAllUserTasksByFilter(c.Request.Context(), body.UserID, body.Category)
	if err != nil {
		respondError(c, "GetAllUserTasksByFilter", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetAllUserTasks lists every task of a user.
func (tc *TaskController) GetAllUserTasks(c *gin.Context) {
	var body userRequest
	if !bind(c, &body) {
		return
	}
	tasks, err := tc.svc.GetAllUserTasks(c.Request.Context(), body.UserID)
	if err != nil {
		respondError(c, "GetAllUserTasks", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetCurrentTask returns a zero or one element array.
func (tc *TaskController) GetCurrentTask(c *gin.Context) {
	var body taskRequest
	if !bind(c, &body) {
		return
	}
	tasks, err := tc.svc.GetCurrentTask(c.Request.Context(), body.TaskID)
	if err != nil {
		respondError(c, "GetCurrentTask", err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// DeleteTask removes a task by id.
func (tc *TaskController) DeleteTask(c *gin.Context) {
	var body taskRequest
	if !bind(c, &body) {
		return
	}
	res, err := tc.svc.DeleteTask(c.Request.Context(), body.TaskID)
	if err != nil {
		respondError(c, "DeleteTask", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// CreateGraphByFilterForDay reports today's completed/uncompleted counts.
func (tc *TaskController) CreateGraphByFilterForDay(c *gin.Context) {
	tc.stageReport(c, "CreateGraphByFilterForDay", tc.svc.CreateGraphByFilterForDay)
}

// CreateGraphByFilterForWeek reports the trailing seven days.
func (tc *TaskController) CreateGraphByFilterForWeek(c *gin.Context) {
	tc.stageReport(c, "CreateGraphByFilterForWeek", tc.svc.CreateGraphByFilterForWeek)
}

// CreateGraphByFilterForMonth reports the current calendar month.
func (tc *TaskController) CreateGraphByFilterForMonth(c *gin.Context) {
	tc.stageReport(c, "CreateGraphByFilterForMonth", tc.svc.CreateGraphByFilterForMonth)
}

func (tc *TaskController) stageReport(c *gin.Context, op string,
	report func(context.Context, int64) (*models.StageReport, error)) {
	var body userRequest
	if !bind(c, &body) {
		return
	}
	res, err := report(c.Request.Context(), body.UserID)
	if err != nil {
		respondError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		logger.Debug(c.Request.Context(), "Invalid request body", "error", err, "path", c.FullPath())
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return false
	}
	return true
}

// respondError maps service errors to one wire shape: validation errors are
// 400 {"message"}, store errors are 500 {"error"} carrying the driver message.
func respondError(c *gin.Context, op string, err error) {
	ctx := c.Request.Context()
	if service.KindOf(err) == service.KindValidation {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if ctx.Err() != nil || isContextErr(err) {
		return
	}
	logger.Error(ctx, op+" failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
