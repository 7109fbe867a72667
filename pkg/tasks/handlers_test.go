package tasks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTaskHandler_Found(t *testing.T) {
	store := NewTaskStore(setupTestDB(t))
	task, err := store.Enqueue(&Task{Type: TaskTypeUpdateShares, ComponentID: 7})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/"+task.ID, nil)
	w := httptest.NewRecorder()
	Router(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, task.ID, resp.ID)
	assert.Equal(t, "update_shares", resp.Type)
	assert.Equal(t, int64(7), resp.ComponentID)
	assert.Equal(t, "queued", resp.State)
}

func TestGetTaskHandler_NotFound(t *testing.T) {
	store := NewTaskStore(setupTestDB(t))

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	Router(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasksHandler(t *testing.T) {
	store := NewTaskStore(setupTestDB(t))
	for _, c := range []int64{1, 1, 2} {
		_, err := store.Enqueue(&Task{Type: TaskTypeUpdateShares, ComponentID: c})
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/?componentId=1", nil)
	w := httptest.NewRecorder()
	Router(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Tasks     []TaskResponse `json:"tasks"`
		TotalSize int            `json:"totalSize"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalSize)
	assert.Len(t, resp.Tasks, 2)
}

func TestListTasksHandler_BadComponent(t *testing.T) {
	store := NewTaskStore(setupTestDB(t))

	req := httptest.NewRequest(http.MethodGet, "/?componentId=abc", nil)
	w := httptest.NewRecorder()
	Router(store).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
