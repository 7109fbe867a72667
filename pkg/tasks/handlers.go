package tasks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetTaskHandler handles GET /tasks/{taskId}
func GetTaskHandler(store *TaskStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "taskId")
		if taskID == "" {
			WriteError(w, http.StatusBadRequest, "missing task ID")
			return
		}

		task, err := store.Get(taskID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get task: %v", err))
			return
		}
		if task == nil {
			WriteError(w, http.StatusNotFound, fmt.Sprintf("task %q not found", taskID))
			return
		}
		WriteJSON(w, http.StatusOK, TaskToResponse(task))
	}
}

// ListTasksHandler handles GET /tasks
// Query params: type, state, componentId, pageSize, pageToken
func ListTasksHandler(store *TaskStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := TaskListFilter{
			Type:  q.Get("type"),
			State: q.Get("state"),
		}
		if c := q.Get("componentId"); c != "" {
			id, err := strconv.ParseInt(c, 10, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "invalid componentId")
				return
			}
			filter.ComponentID = id
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.List(filter, pageSize, q.Get("pageToken"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list tasks: %v", err))
			return
		}
		items := make([]TaskResponse, len(records))
		for i := range records {
			items[i] = TaskToResponse(&records[i])
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"tasks":         items,
			"nextPageToken": nextToken,
			"totalSize":     total,
		})
	}
}

// TaskResponse is the API representation of a task.
type TaskResponse struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	ComponentID  int64  `json:"componentId"`
	State        string `json:"state"`
	CreatedAt    string `json:"createdAt"`
	StartedAt    string `json:"startedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
	AttemptCount int    `json:"attemptCount"`
	LastError    string `json:"lastError,omitempty"`
	Result       string `json:"result,omitempty"`
	DurationMs   int64  `json:"durationMs,omitempty"`
}

// TaskToResponse converts a task to its API representation.
func TaskToResponse(task *Task) TaskResponse {
	resp := TaskResponse{
		ID:           task.ID,
		Type:         string(task.Type),
		ComponentID:  task.ComponentID,
		State:        string(task.State),
		CreatedAt:    task.CreatedAt.Format(time.RFC3339),
		AttemptCount: task.AttemptCount,
		LastError:    task.LastError,
		Result:       task.Result,
		DurationMs:   task.DurationMs,
	}
	if task.StartedAt != nil {
		resp.StartedAt = task.StartedAt.Format(time.RFC3339)
	}
	if task.FinishedAt != nil {
		resp.FinishedAt = task.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an {"error": message} response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}
