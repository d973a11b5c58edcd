package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"task-tracker/internal/models"
	"task-tracker/pkg/logger"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"
)

// TaskStore is the data-store client the service runs its statements through.
type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	UpdateStage(ctx context.Context, taskID int64, completed int) (owner int64, affected int64, err error)
	Delete(ctx context.Context, taskID int64) (owner int64, affected int64, err error)
	ListByUser(ctx context.Context, userID int64) ([]models.Task, error)
	ListByUserAndCategory(ctx context.Context, userID, category int64) ([]models.Task, error)
	GetByID(ctx context.Context, taskID int64) ([]models.Task, error)
	CountByStage(ctx context.Context, userID int64, from, to string) (models.StageReport, error)
}

// Cache stores per-user read results. Misses and failures both report false.
//
// Every InvalidateUser bumps the user's generation. Set only stores a value
// when the generation is still the one read before the value was loaded, so
// a load that overlaps a write never repopulates the cache with old rows.
type Cache interface {
	Generation(ctx context.Context, userID int64) (int64, error)
	Get(ctx context.Context, userID int64, field string, dst interface{}) bool
	Set(ctx context.Context, userID, gen int64, field string, v interface{})
	InvalidateUser(ctx context.Context, userID int64)
}

// EventPublisher receives task lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, ev *models.TaskEvent) error
}

var deadlinePattern = regexp.MustCompile(`^\d{2}/\d{2}/\d{2} \d{2}:\d{2}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("deadline", func(fl validator.FieldLevel) bool {
		return deadlinePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register deadline validation: %v", err))
	}
	return v
}

// CreateTaskInput carries the fields accepted by CreateTask.
type CreateTaskInput struct {
	UserID      int64
	Name        string
	Description string
	Deadline    string `validate:"deadline"`
	CategoryID  *int64
}

// TaskService implements the task operations. It holds no per-request state.
type TaskService struct {
	store  TaskStore
	cache  Cache
	events EventPublisher
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a TaskService.
type Option func(*TaskService)

// WithCache enables cache-first reads for user lists and reports.
func WithCache(c Cache) Option {
	return func(s *TaskService) { s.cache = c }
}

// WithEvents publishes an event after every successful write.
func WithEvents(p EventPublisher) Option {
	return func(s *TaskService) { s.events = p }
}

// WithClock replaces time.Now. The clock's location is used for formatting and windows.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

// New returns a TaskService running its statements through store.
func New(store TaskStore, opts ...Option) *TaskService {
	s := &TaskService{store: store, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateTask validates the deadline and inserts a new uncompleted task.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	if err := validate.Struct(in); err != nil {
		return nil, validationError(MsgDeadlineFormat, nil)
	}
	now := s.now()
	if _, err := time.ParseInLocation(models.DateLayout, in.Deadline, now.Location()); err != nil {
		return nil, validationError(MsgDeadlineInvalid, nil)
	}

	task := &models.Task{
		UserID:         in.UserID,
		Name:           in.Name,
		Description:    in.Description,
		DateOfCreation: now.Format(models.DateLayout),
		Deadline:       in.Deadline,
		Completed:      0,
		CategoryID:     in.CategoryID,
		CreatedAt:      formatCreatedAt(now),
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, storeError(err)
	}
	s.afterWrite(ctx, models.EventTaskCreated, task.ID, task.UserID, nil)
	return task, nil
}

// UpdateTaskStage sets completed on a task. A missing task is not an error.
func (s *TaskService) UpdateTaskStage(ctx context.Context, taskID int64, completed int) (*models.StageResult, error) {
	owner, affected, err := s.store.UpdateStage(ctx, taskID, completed)
	if err != nil {
		return nil, storeError(err)
	}
	if affected > 0 {
		s.afterWrite(ctx, models.EventTaskStageChanged, taskID, owner, &completed)
	}
	return &models.StageResult{RowsAffected: affected}, nil
}

// DeleteTask removes a task. A missing task is not an error.
func (s *TaskService) DeleteTask(ctx context.Context, taskID int64) (*models.StageResult, error) {
	owner, affected, err := s.store.Delete(ctx, taskID)
	if err != nil {
		return nil, storeError(err)
	}
	if affected > 0 {
		s.afterWrite(ctx, models.EventTaskDeleted, taskID, owner, nil)
	}
	return &models.StageResult{RowsAffected: affected}, nil
}

// GetAllUserTasks returns every task of the user.
func (s *TaskService) GetAllUserTasks(ctx context.Context, userID int64) ([]models.Task, error) {
	return loadShared(s, ctx, userID, "all", func(ctx context.Context) ([]models.Task, error) {
		return s.store.ListByUser(ctx, userID)
	})
}

// GetAllUserTasksByFilter returns the user's tasks in exactly the given category.
func (s *TaskService) GetAllUserTasksByFilter(ctx context.Context, userID, category int64) ([]models.Task, error) {
	field := "category:" + strconv.FormatInt(category, 10)
	return loadShared(s, ctx, userID, field, func(ctx context.Context) ([]models.Task, error) {
		return s.store.ListByUserAndCategory(ctx, userID, category)
	})
}

// GetCurrentTask returns the task as a zero or one element slice.
func (s *TaskService) GetCurrentTask(ctx context.Context, taskID int64) ([]models.Task, error) {
	tasks, err := s.store.GetByID(ctx, taskID)
	if err != nil {
		return nil, storeError(err)
	}
	return tasks, nil
}

// CreateGraphByFilterForDay counts today's tasks by stage.
func (s *TaskService) CreateGraphByFilterForDay(ctx context.Context, userID int64) (*models.StageReport, error) {
	return s.StageReport(ctx, userID, Day)
}

// CreateGraphByFilterForWeek counts the tasks of the trailing seven days by stage.
func (s *TaskService) CreateGraphByFilterForWeek(ctx context.Context, userID int64) (*models.StageReport, error) {
	return s.StageReport(ctx, userID, Week)
}

// CreateGraphByFilterForMonth counts the tasks of the current month by stage.
func (s *TaskService) CreateGraphByFilterForMonth(ctx context.Context, userID int64) (*models.StageReport, error) {
	return s.StageReport(ctx, userID, Month)
}

// StageReport counts the user's tasks created inside window w, split by completed.
func (s *TaskService) StageReport(ctx context.Context, userID int64, w Window) (*models.StageReport, error) {
	from, to := w.Bounds(s.now())
	field := "graph:" + w.String() + ":" + strconv.FormatInt(from.Truncate(time.Minute).Unix(), 10)
	report, err := loadShared(s, ctx, userID, field, func(ctx context.Context) (models.StageReport, error) {
		return s.store.CountByStage(ctx, userID, formatCreatedAt(from), formatCreatedAt(to))
	})
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// loadShared serves a per-user read from the cache, collapsing concurrent misses
// for the same key into one store call. The key carries the user's cache
// generation, so callers arriving after a write never join a load that began
// before it.
func loadShared[T any](s *TaskService, ctx context.Context, userID int64, field string, load func(context.Context) (T, error)) (T, error) {
	var out T
	cached := s.cache != nil
	var gen int64
	if cached {
		var err error
		if gen, err = s.cache.Generation(ctx, userID); err != nil {
			logger.Debug(ctx, "Cache generation unavailable; reading from store", "error", err, "user_id", userID)
			cached = false
		}
	}
	if cached && s.cache.Get(ctx, userID, field, &out) {
		return out, nil
	}
	key := strconv.FormatInt(userID, 10) + ":" + field
	if cached {
		key += "@" + strconv.FormatInt(gen, 10)
	}
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		// detached so one caller's cancellation does not fail the others
		loadCtx := context.WithoutCancel(ctx)
		res, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if cached {
			s.cache.Set(loadCtx, userID, gen, field, res)
		}
		return res, nil
	})
	if err != nil {
		return out, storeError(err)
	}
	return v.(T), nil
}

func (s *TaskService) afterWrite(ctx context.Context, eventType string, taskID, userID int64, completed *int) {
	if s.cache != nil {
		s.cache.InvalidateUser(ctx, userID)
	}
	if s.events == nil {
		return
	}
	ev := &models.TaskEvent{
		Type:       eventType,
		TaskID:     taskID,
		UserID:     userID,
		Completed:  completed,
		OccurredAt: s.now().UTC(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		logger.Warn(ctx, "Publish task event failed", "error", err, "type", eventType, "task_id", taskID)
	}
}
