package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"task-tracker/internal/database"
	"task-tracker/internal/models"
	"task-tracker/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memCache struct {
	mu          sync.Mutex
	data        map[int64]map[string][]byte
	gens        map[int64]int64
	hits        int
	invalidated []int64
}

func newMemCache() *memCache {
	return &memCache{data: map[int64]map[string][]byte{}, gens: map[int64]int64{}}
}

func (c *memCache) Generation(_ context.Context, userID int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *memCache) Get(_ context.Context, userID int64, field string, dst interface{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[userID][field]
	if !ok {
		return false
	}
	c.hits++
	return json.Unmarshal(b, dst) == nil
}

func (c *memCache) Set(_ context.Context, userID, gen int64, field string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return
	}
	b, _ := json.Marshal(v)
	if c.data[userID] == nil {
		c.data[userID] = map[string][]byte{}
	}
	c.data[userID][field] = b
}

func (c *memCache) InvalidateUser(_ context.Context, userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, userID)
	c.gens[userID]++
	c.invalidated = append(c.invalidated, userID)
}

type recordingPublisher struct {
	events []*models.TaskEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev *models.TaskEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

// failingStore fails every call with the same driver error.
type failingStore struct{ err error }

func (f failingStore) Create(context.Context, *models.Task) error { return f.err }
func (f failingStore) UpdateStage(context.Context, int64, int) (int64, int64, error) {
	return 0, 0, f.err
}
func (f failingStore) Delete(context.Context, int64) (int64, int64, error) { return 0, 0, f.err }
func (f failingStore) ListByUser(context.Context, int64) ([]models.Task, error) {
	return nil, f.err
}
func (f failingStore) ListByUserAndCategory(context.Context, int64, int64) ([]models.Task, error) {
	return nil, f.err
}
func (f failingStore) GetByID(context.Context, int64) ([]models.Task, error) { return nil, f.err }
func (f failingStore) CountByStage(context.Context, int64, string, string) (models.StageReport, error) {
	return models.StageReport{}, f.err
}

// gatedStore holds the next ListByUser after its rows were read, until release is closed.
type gatedStore struct {
	TaskStore
	mu      sync.Mutex
	armed   bool
	loaded  chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = true
	g.loaded = make(chan struct{})
	g.release = make(chan struct{})
}

func (g *gatedStore) ListByUser(ctx context.Context, userID int64) ([]models.Task, error) {
	tasks, err := g.TaskStore.ListByUser(ctx, userID)
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	g.mu.Unlock()
	if armed {
		close(g.loaded)
		<-g.release
	}
	return tasks, err
}

var baseTime = time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *repository.TaskRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.SQLite, ":memory:", 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.MigrateOrCreateSchema(ctx, db))
	return repository.NewTaskRepository(db)
}

func newTestService(t *testing.T, opts ...Option) (*TaskService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: baseTime}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(newTestRepo(t), opts...), clock
}

func int64Ptr(v int64) *int64 { return &v }

func createTask(t *testing.T, s *TaskService, userID int64, category *int64) *models.Task {
	t.Helper()
	task, err := s.CreateTask(context.Background(), CreateTaskInput{
		UserID:      userID,
		Name:        "task",
		Description: "description",
		Deadline:    "31/12/26 23:59",
		CategoryID:  category,
	})
	require.NoError(t, err)
	return task
}

func TestCreateTask_Valid(t *testing.T) {
	s, _ := newTestService(t)

	task, err := s.CreateTask(context.Background(), CreateTaskInput{
		UserID:      5,
		Name:        "pay rent",
		Description: "before the 1st",
		Deadline:    "01/11/26 09:00",
		CategoryID:  int64Ptr(2),
	})
	require.NoError(t, err)

	assert.NotZero(t, task.ID)
	assert.EqualValues(t, 5, task.UserID)
	assert.Equal(t, "19/10/26 12:30", task.DateOfCreation)
	assert.Equal(t, "01/11/26 09:00", task.Deadline)
	assert.Equal(t, 0, task.Completed)
	assert.EqualValues(t, 2, *task.CategoryID)

	stored, err := s.GetCurrentTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, *task, stored[0])
}

func TestCreateTask_DeadlineValidation(t *testing.T) {
	tests := []struct {
		name     string
		deadline string
		message  string
	}{
		{name: "iso date", deadline: "2024-01-01", message: MsgDeadlineFormat},
		{name: "date without time", deadline: "01/01/24", message: MsgDeadlineFormat},
		{name: "single digit day", deadline: "1/01/24 10:00", message: MsgDeadlineFormat},
		{name: "trailing text", deadline: "01/01/24 10:00 pm", message: MsgDeadlineFormat},
		{name: "empty", deadline: "", message: MsgDeadlineFormat},
		{name: "february 31st", deadline: "31/02/24 10:00", message: MsgDeadlineInvalid},
		{name: "all fields out of range", deadline: "32/13/99 25:99", message: MsgDeadlineInvalid},
		{name: "minute out of range", deadline: "01/01/24 10:60", message: MsgDeadlineInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestService(t)
			task, err := s.CreateTask(context.Background(), CreateTaskInput{UserID: 1, Deadline: tt.deadline})
			require.Error(t, err)
			assert.Nil(t, task)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tt.message, err.Error())

			all, err := s.GetAllUserTasks(context.Background(), 1)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestCreateTask_LeapDay(t *testing.T) {
	s, _ := newTestService(t)
	_, err := s.CreateTask(context.Background(), CreateTaskInput{UserID: 1, Deadline: "29/02/28 08:00"})
	assert.NoError(t, err)
}

func TestUpdateTaskStage(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	task := createTask(t, s, 1, nil)

	res, err := s.UpdateTaskStage(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)

	got, err := s.GetCurrentTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Completed)

	_, err = s.UpdateTaskStage(ctx, task.ID, 1)
	require.NoError(t, err)
	got, err = s.GetCurrentTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].Completed)

	_, err = s.UpdateTaskStage(ctx, task.ID, 0)
	require.NoError(t, err)
	got, err = s.GetCurrentTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got[0].Completed)

	res, err = s.UpdateTaskStage(ctx, task.ID+1000, 1)
	require.NoError(t, err)
	assert.Zero(t, res.RowsAffected)
}

func TestDeleteTask(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	task := createTask(t, s, 1, nil)

	res, err := s.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.RowsAffected)

	got, err := s.GetCurrentTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got)

	res, err = s.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Zero(t, res.RowsAffected)
}

func TestGetAllUserTasksByFilter(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	match := createTask(t, s, 1, int64Ptr(7))
	createTask(t, s, 1, int64Ptr(8))
	createTask(t, s, 2, int64Ptr(7))
	createTask(t, s, 1, nil)

	got, err := s.GetAllUserTasksByFilter(ctx, 1, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, match.ID, got[0].ID)

	all, err := s.GetAllUserTasks(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := s.GetAllUserTasksByFilter(ctx, 1, 99)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStageReports(t *testing.T) {
	s, clock := newTestService(t)
	ctx := context.Background()

	// 10 days ago, completed
	clock.Set(baseTime.AddDate(0, 0, -10))
	old := createTask(t, s, 1, nil)
	_, err := s.UpdateTaskStage(ctx, old.ID, 1)
	require.NoError(t, err)

	// 3 days ago, uncompleted
	clock.Set(baseTime.AddDate(0, 0, -3))
	createTask(t, s, 1, nil)

	// today: two completed, one not
	clock.Set(baseTime.Add(-2 * time.Hour))
	for i := 0; i < 3; i++ {
		task := createTask(t, s, 1, nil)
		if i < 2 {
			_, err := s.UpdateTaskStage(ctx, task.ID, 1)
			require.NoError(t, err)
		}
	}
	// another user's task never counts
	createTask(t, s, 2, nil)

	clock.Set(baseTime)

	day, err := s.CreateGraphByFilterForDay(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StageReport{Completed: 2, Uncompleted: 1}, *day)

	week, err := s.CreateGraphByFilterForWeek(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StageReport{Completed: 2, Uncompleted: 2}, *week)

	month, err := s.CreateGraphByFilterForMonth(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StageReport{Completed: 3, Uncompleted: 2}, *month)

	empty, err := s.CreateGraphByFilterForDay(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StageReport{}, *empty)
}

func TestStoreErrorsPassThrough(t *testing.T) {
	driverErr := errors.New(`pq: relation "tasks" does not exist`)
	s := New(failingStore{err: driverErr}, WithClock(func() time.Time { return baseTime }))
	ctx := context.Background()

	calls := map[string]func() error{
		"create": func() error {
			_, err := s.CreateTask(ctx, CreateTaskInput{Deadline: "01/01/27 10:00"})
			return err
		},
		"stage": func() error {
			_, err := s.UpdateTaskStage(ctx, 1, 1)
			return err
		},
		"delete": func() error {
			_, err := s.DeleteTask(ctx, 1)
			return err
		},
		"all": func() error {
			_, err := s.GetAllUserTasks(ctx, 1)
			return err
		},
		"filter": func() error {
			_, err := s.GetAllUserTasksByFilter(ctx, 1, 1)
			return err
		},
		"one": func() error {
			_, err := s.GetCurrentTask(ctx, 1)
			return err
		},
		"report": func() error {
			_, err := s.CreateGraphByFilterForMonth(ctx, 1)
			return err
		},
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.Equal(t, KindStore, KindOf(err))
			assert.ErrorIs(t, err, driverErr)
			assert.Equal(t, driverErr.Error(), err.Error())
		})
	}
}

func TestCacheAndEvents(t *testing.T) {
	cache := newMemCache()
	pub := &recordingPublisher{err: errors.New("broker down")}
	s, _ := newTestService(t, WithCache(cache), WithEvents(pub))
	ctx := context.Background()

	task := createTask(t, s, 1, nil)
	require.Len(t, pub.events, 1)
	assert.Equal(t, models.EventTaskCreated, pub.events[0].Type)
	assert.Equal(t, task.ID, pub.events[0].TaskID)
	assert.EqualValues(t, 1, pub.events[0].UserID)

	first, err := s.GetAllUserTasks(ctx, 1)
	require.NoError(t, err)
	second, err := s.GetAllUserTasks(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)

	_, err = s.CreateGraphByFilterForDay(ctx, 1)
	require.NoError(t, err)
	report, err := s.CreateGraphByFilterForDay(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.hits)
	assert.EqualValues(t, 1, report.Uncompleted)

	_, err = s.UpdateTaskStage(ctx, task.ID, 1)
	require.NoError(t, err)
	require.Len(t, pub.events, 2)
	assert.Equal(t, models.EventTaskStageChanged, pub.events[1].Type)
	require.NotNil(t, pub.events[1].Completed)
	assert.Equal(t, 1, *pub.events[1].Completed)

	after, err := s.GetAllUserTasks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 1, after[0].Completed)

	// no row touched: no event, no invalidation
	invalidations := len(cache.invalidated)
	_, err = s.DeleteTask(ctx, task.ID+50)
	require.NoError(t, err)
	assert.Len(t, pub.events, 2)
	assert.Len(t, cache.invalidated, invalidations)

	_, err = s.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, pub.events, 3)
	assert.Equal(t, models.EventTaskDeleted, pub.events[2].Type)
	assert.Equal(t, []int64{1, 1, 1}, cache.invalidated)
}

func TestWindowBounds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 10, 19, 1, 15, 42, 500, loc)

	tests := []struct {
		window   Window
		wantFrom time.Time
		wantTo   time.Time
	}{
		{Day, time.Date(2026, 10, 19, 0, 0, 0, 0, loc), time.Date(2026, 10, 19, 23, 59, 59, 0, loc)},
		{Week, time.Date(2026, 10, 12, 1, 15, 42, 0, loc), time.Date(2026, 10, 19, 1, 15, 42, 0, loc)},
		{Month, time.Date(2026, 10, 1, 0, 0, 0, 0, loc), time.Date(2026, 10, 19, 1, 15, 42, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			from, to := tt.window.Bounds(now)
			assert.True(t, tt.wantFrom.Equal(from), "from = %v", from)
			assert.True(t, tt.wantTo.Equal(to), "to = %v", to)
		})
	}

	// local midnight is the previous day in UTC
	from, _ := Day.Bounds(now)
	assert.Equal(t, "2026-10-18T21:00:00Z", formatCreatedAt(from))
}

func TestCacheFillOverlappingWrite(t *testing.T) {
	store := &gatedStore{TaskStore: newTestRepo(t)}
	cache := newMemCache()
	s := New(store, WithClock(func() time.Time { return baseTime }), WithCache(cache))
	ctx := context.Background()
	task := createTask(t, s, 1, nil)

	store.arm()
	done := make(chan []models.Task, 1)
	go func() {
		tasks, err := s.GetAllUserTasks(ctx, 1)
		assert.NoError(t, err)
		done <- tasks
	}()
	<-store.loaded

	_, err := s.UpdateTaskStage(ctx, task.ID, 1)
	require.NoError(t, err)

	// a read after the write does not join the load that started before it
	fresh := make(chan []models.Task, 1)
	go func() {
		tasks, err := s.GetAllUserTasks(ctx, 1)
		assert.NoError(t, err)
		fresh <- tasks
	}()
	select {
	case tasks := <-fresh:
		require.Len(t, tasks, 1)
		assert.Equal(t, 1, tasks[0].Completed)
	case <-time.After(5 * time.Second):
		close(store.release)
		t.Fatal("read after write waited on the earlier load")
	}

	close(store.release)
	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, 0, stale[0].Completed)

	for i := 0; i < 2; i++ {
		after, err := s.GetAllUserTasks(ctx, 1)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, 1, after[0].Completed)
	}
}

func TestValidatorDeadlineTag(t *testing.T) {
	assert.NoError(t, validate.Struct(CreateTaskInput{Deadline: "05/11/26 09:15"}))
	assert.Error(t, validate.Struct(CreateTaskInput{Deadline: "5/11/26 09:15"}))
}
