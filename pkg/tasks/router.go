package tasks

import (
	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the task status API.
func Router(store *TaskStore) chi.Router {
	r := chi.NewRouter()
	r.Get("/", ListTasksHandler(store))
	r.Get("/{taskId}", GetTaskHandler(store))
	return r
}
