package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Handler executes one task and returns a short result summary.
type Handler func(ctx context.Context, task *Task) (string, error)

// ErrAlreadyStarted is returned by Start on a running service.
var ErrAlreadyStarted = errors.New("task service already started")

// Service owns the task queue workers. It is created once at process start
// and has an explicit Start/Stop lifecycle.
type Service struct {
	store    *TaskStore
	cfg      Config
	logger   *slog.Logger
	handlers map[TaskType]Handler

	wake   chan struct{}
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a task service.
func NewService(store *TaskStore, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		handlers: map[TaskType]Handler{},
		wake:     make(chan struct{}, 1),
	}
}

// Store returns the task store.
func (s *Service) Store() *TaskStore { return s.store }

// Register sets the handler of a task type. Handlers must be registered
// before Start.
func (s *Service) Register(t TaskType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
}

// Enqueue stores a task and wakes a worker.
func (s *Service) Enqueue(t TaskType, componentID int64, payload map[string]any, idempotencyKey string) (*Task, error) {
	task := &Task{Type: t, ComponentID: componentID, Payload: payload}
	if idempotencyKey != "" {
		task.IdempotencyKey = &idempotencyKey
	}
	task, err := s.store.Enqueue(task)
	if err != nil {
		return nil, err
	}
	s.signal()
	return task, nil
}

func (s *Service) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start spawns the workers and the cleanup loop. It returns immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	if !s.cfg.Enabled {
		s.logger.Info("task service disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info("task service starting",
		"concurrency", s.cfg.Concurrency,
		"maxRetries", s.cfg.MaxRetries,
		"pollInterval", s.cfg.PollInterval.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.cleanupLoop(ctx)
	}()
	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go func(workerID int) {
			defer s.wg.Done()
			s.workerLoop(ctx, workerID)
		}(i)
	}
	return nil
}

// Stop cancels the workers and waits for running tasks to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	s.logger.Info("task service shutting down, waiting for workers to finish")
	cancel()
	s.wg.Wait()
	s.logger.Info("task service stopped")
}

func (s *Service) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain the queue before waiting again
		for ctx.Err() == nil && s.ProcessOne(ctx, workerID) {
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// ProcessOne claims and runs a single task. It reports whether a task was
// claimed.
func (s *Service) ProcessOne(ctx context.Context, workerID int) bool {
	task, err := s.store.Claim(s.cfg.MaxRetries)
	if err != nil {
		s.logger.Error("failed to claim task", "workerID", workerID, "error", err)
		return false
	}
	if task == nil {
		return false
	}

	s.logger.Info("processing task",
		"workerID", workerID,
		"taskID", task.ID,
		"type", task.Type,
		"attempt", task.AttemptCount)

	s.mu.Lock()
	handler, ok := s.handlers[task.Type]
	s.mu.Unlock()
	if !ok {
		s.fail(task, fmt.Sprintf("no handler registered for task type %q", task.Type))
		return true
	}

	start := time.Now()
	result, err := handler(ctx, task)
	if err != nil {
		s.logger.Error("task failed", "workerID", workerID, "taskID", task.ID, "error", err)
		s.fail(task, err.Error())
		return true
	}
	duration := time.Since(start)
	s.logger.Info("task completed",
		"workerID", workerID,
		"taskID", task.ID,
		"result", result,
		"duration", duration.String())
	if err := s.store.Complete(task.ID, result, duration); err != nil {
		s.logger.Error("failed to mark task as complete", "taskID", task.ID, "error", err)
	}
	return true
}

func (s *Service) fail(task *Task, msg string) {
	if err := s.store.Fail(task.ID, msg, s.cfg.MaxRetries); err != nil {
		s.logger.Error("failed to mark task as failed", "taskID", task.ID, "error", err)
	}
}

func (s *Service) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Cleanup requeues stuck tasks and deletes expired finished ones.
func (s *Service) Cleanup() {
	if s.cfg.ClaimTimeout > 0 {
		recovered, err := s.store.CleanupStuckTasks(s.cfg.ClaimTimeout)
		if err != nil {
			s.logger.Error("failed to cleanup stuck tasks", "error", err)
		} else if recovered > 0 {
			s.logger.Info("recovered stuck tasks", "count", recovered)
		}
	}
	if s.cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
		deleted, err := s.store.DeleteOlderThan(cutoff)
		if err != nil {
			s.logger.Error("failed to delete old tasks", "error", err)
		} else if deleted > 0 {
			s.logger.Info("deleted old tasks", "count", deleted)
		}
	}
}
