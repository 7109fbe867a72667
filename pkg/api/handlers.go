package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sampledb/sampledb/pkg/federation"
	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/store"
	"github.com/sampledb/sampledb/pkg/tasks"
)

// IdempotencyKeyHeader deduplicates update batches that are posted twice.
const IdempotencyKeyHeader = "Idempotency-Key"

// ComponentResponse is the API representation of a peer component.
type ComponentResponse struct {
	ID                int64   `json:"id"`
	UUID              string  `json:"uuid"`
	Name              *string `json:"name,omitempty"`
	Address           *string `json:"address,omitempty"`
	Description       string  `json:"description,omitempty"`
	LastSyncTimestamp string  `json:"lastSyncTimestamp,omitempty"`
}

// ComponentToResponse converts a component to its API representation.
func ComponentToResponse(c *store.Component) ComponentResponse {
	resp := ComponentResponse{
		ID:          c.ID,
		UUID:        c.UUID,
		Name:        c.Name,
		Address:     c.Address,
		Description: c.Description,
	}
	if c.LastSyncTimestamp != nil {
		resp.LastSyncTimestamp = c.LastSyncTimestamp.UTC().Format(time.RFC3339)
	}
	return resp
}

type addComponentRequest struct {
	UUID        string  `json:"uuid"`
	Name        *string `json:"name"`
	Address     *string `json:"address"`
	Description string  `json:"description"`
}

type shareObjectRequest struct {
	ObjectID int64          `json:"objectId"`
	Policy   map[string]any `json:"policy"`
	UserID   *int64         `json:"userId"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	sqlDB, err := s.engine.Store().DB().DB()
	if err == nil {
		err = sqlDB.PingContext(r.Context())
	}
	if err != nil {
		tasks.WriteError(w, http.StatusServiceUnavailable, fmt.Sprintf("database unavailable: %v", err))
		return
	}
	tasks.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listComponentsHandler handles GET /components
func (s *Server) listComponentsHandler(w http.ResponseWriter, r *http.Request) {
	components, err := s.engine.Store().ListComponents()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	items := make([]ComponentResponse, len(components))
	for i := range components {
		items[i] = ComponentToResponse(&components[i])
	}
	tasks.WriteJSON(w, http.StatusOK, map[string]any{"components": items})
}

// addComponentHandler handles POST /components
func (s *Server) addComponentHandler(w http.ResponseWriter, r *http.Request) {
	var req addComponentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		tasks.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	c, err := s.engine.Store().AddComponent(req.UUID, req.Name, req.Address, req.Description)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.logger.Info("component added", "uuid", c.UUID, "id", c.ID)
	tasks.WriteJSON(w, http.StatusCreated, ComponentToResponse(c))
}

// getComponentHandler handles GET /components/{uuid}
func (s *Server) getComponentHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.component(w, r)
	if !ok {
		return
	}
	tasks.WriteJSON(w, http.StatusOK, ComponentToResponse(c))
}

// componentLogHandler handles GET /components/{uuid}/log
func (s *Server) componentLogHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.component(w, r)
	if !ok {
		return
	}
	entries, err := s.engine.Log().EntriesForComponent(c.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeEntries(w, entries)
}

// exportHandler handles GET /components/{uuid}/export
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.component(w, r)
	if !ok {
		return
	}
	batch, err := s.engine.ExportShares(r.Context(), c.ID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	tasks.WriteJSON(w, http.StatusOK, batch)
}

// shareObjectHandler handles POST /components/{uuid}/shares
func (s *Server) shareObjectHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.component(w, r)
	if !ok {
		return
	}
	var req shareObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		tasks.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := s.engine.ShareObject(r.Context(), req.ObjectID, c.ID, req.Policy, req.UserID); err != nil {
		s.writeEngineError(w, err)
		return
	}
	tasks.WriteJSON(w, http.StatusOK, map[string]any{"objectId": req.ObjectID, "componentId": c.ID})
}

// enqueueUpdateHandler handles POST /components/{uuid}/updates
// The batch is parsed up front so malformed payloads are rejected before a
// task is queued. Without a task service the batch is imported inline.
func (s *Server) enqueueUpdateHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := s.component(w, r)
	if !ok {
		return
	}
	var batch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		tasks.WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if _, err := s.engine.ParseBatch(batch); err != nil {
		s.writeEngineError(w, err)
		return
	}

	if s.tasks == nil {
		result, err := s.engine.UpdateShares(r.Context(), c.ID, batch)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		tasks.WriteJSON(w, http.StatusOK, result)
		return
	}

	task, err := s.tasks.Enqueue(tasks.TaskTypeUpdateShares, c.ID, batch, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		tasks.WriteError(w, http.StatusInternalServerError, fmt.Sprintf("failed to enqueue update: %v", err))
		return
	}
	s.logger.Info("update batch queued", "component", c.UUID, "task", task.ID)
	tasks.WriteJSON(w, http.StatusAccepted, tasks.TaskToResponse(task))
}

// entityLogHandler handles GET /log/{kind}/{id}
// Query params: componentId
func (s *Server) entityLogHandler(w http.ResponseWriter, r *http.Request) {
	kind, ok := store.ParseKind(chi.URLParam(r, "kind"))
	if !ok || kind == store.KindComponent {
		tasks.WriteError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity kind %q", chi.URLParam(r, "kind")))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		tasks.WriteError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var componentID *int64
	if v := r.URL.Query().Get("componentId"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			tasks.WriteError(w, http.StatusBadRequest, "invalid componentId")
			return
		}
		componentID = &n
	}
	entries, err := s.engine.Log().EntriesFor(kind, id, componentID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeEntries(w, entries)
}

func (s *Server) component(w http.ResponseWriter, r *http.Request) (*store.Component, bool) {
	c, err := s.engine.Store().GetComponentByUUID(chi.URLParam(r, "uuid"))
	if err != nil {
		s.writeEngineError(w, err)
		return nil, false
	}
	return c, true
}

func writeEntries(w http.ResponseWriter, entries []fedlog.Entry) {
	if entries == nil {
		entries = []fedlog.Entry{}
	}
	tasks.WriteJSON(w, http.StatusOK, map[string]any{
		"entries":   entries,
		"totalSize": len(entries),
	})
}

// writeEngineError maps engine errors to status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var notFound *store.DoesNotExistError
	switch {
	case errors.As(err, &notFound):
		tasks.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, federation.ErrInvalidDataExport), errors.Is(err, store.ErrInvalidComponentUUID):
		tasks.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, federation.ErrObjectNotShared):
		tasks.WriteError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		tasks.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
