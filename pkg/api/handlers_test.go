package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sampledb/sampledb/pkg/federation"
	"github.com/sampledb/sampledb/pkg/store"
	"github.com/sampledb/sampledb/pkg/tasks"
)

const (
	localUUID = "28b8d3ca-fb5f-59d9-8090-bfdbd6d07a71"
	peerUUID  = "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"
)

type testServer struct {
	engine *federation.Engine
	tasks  *tasks.Service
	router http.Handler
}

func newTestServer(t *testing.T, withTasks bool) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	engine := federation.NewEngine(store.New(db, localUUID))
	require.NoError(t, engine.AutoMigrate())

	ts := &testServer{engine: engine}
	if withTasks {
		taskStore := tasks.NewTaskStore(db)
		require.NoError(t, taskStore.AutoMigrate())
		ts.tasks = tasks.NewService(taskStore, tasks.DefaultConfig(), nil)
		engine.RegisterTasks(ts.tasks)
	}
	ts.router = NewServer(engine, ts.tasks, nil).Router()
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) addPeer(t *testing.T) *store.Component {
	t.Helper()
	name := "Peer"
	c, err := ts.engine.Store().AddComponent(peerUUID, &name, nil, "")
	require.NoError(t, err)
	return c
}

func userBatch() map[string]any {
	return map[string]any{
		"users": []any{
			map[string]any{"user_id": 3, "component_uuid": peerUUID, "name": "Jane"},
		},
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestComponentsHandlers(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/components", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"components": []}`, w.Body.String())

	w = ts.do(t, http.MethodPost, "/components", map[string]any{"uuid": peerUUID, "name": "Peer"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created ComponentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, peerUUID, created.UUID)
	require.NotNil(t, created.Name)
	assert.Equal(t, "Peer", *created.Name)

	w = ts.do(t, http.MethodGet, "/components/"+peerUUID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodGet, "/components", nil)
	var list struct {
		Components []ComponentResponse `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Components, 1)
}

func TestComponentErrors(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"register local uuid", http.MethodPost, "/components", map[string]any{"uuid": localUUID}, http.StatusBadRequest},
		{"register malformed uuid", http.MethodPost, "/components", map[string]any{"uuid": "nope"}, http.StatusBadRequest},
		{"unknown component", http.MethodGet, "/components/" + peerUUID, nil, http.StatusNotFound},
		{"malformed component", http.MethodGet, "/components/nope/log", nil, http.StatusBadRequest},
		{"export unknown component", http.MethodGet, "/components/" + peerUUID + "/export", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEnqueueUpdate(t *testing.T) {
	ts := newTestServer(t, true)
	peer := ts.addPeer(t)

	w := ts.do(t, http.MethodPost, "/components/"+peerUUID+"/updates", userBatch())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var queued tasks.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &queued))
	assert.Equal(t, "queued", queued.State)
	assert.Equal(t, peer.ID, queued.ComponentID)

	require.True(t, ts.tasks.ProcessOne(context.Background(), 0))

	w = ts.do(t, http.MethodGet, "/tasks/"+queued.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var done tasks.TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &done))
	assert.Equal(t, "succeeded", done.State)
	assert.Equal(t, "imported 1, updated 0, placeholders 0", done.Result)

	userID, err := ts.engine.Store().LocalID(store.KindUser, 3, peer.ID)
	require.NoError(t, err)
	require.NotNil(t, userID)

	w = ts.do(t, http.MethodGet, "/components/"+peerUUID+"/log", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var log struct {
		Entries []struct {
			Type     string `json:"type"`
			EntityID int64  `json:"entityId"`
			Kind     string `json:"kind"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &log))
	require.Len(t, log.Entries, 1)
	assert.Equal(t, "IMPORT_USER", log.Entries[0].Type)
	assert.Equal(t, *userID, log.Entries[0].EntityID)
	assert.Equal(t, "users", log.Entries[0].Kind)
}

func TestEnqueueUpdateRejectsMalformedBatch(t *testing.T) {
	ts := newTestServer(t, true)
	ts.addPeer(t)

	w := ts.do(t, http.MethodPost, "/components/"+peerUUID+"/updates", map[string]any{"users": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	records, _, total, err := ts.tasks.Store().List(tasks.TaskListFilter{}, 10, "")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, total)
}

func TestUpdateInline(t *testing.T) {
	ts := newTestServer(t, false)
	ts.addPeer(t)

	w := ts.do(t, http.MethodPost, "/components/"+peerUUID+"/updates", userBatch())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result federation.UpdateResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Imported[store.KindUser])
}

func TestEntityLogHandler(t *testing.T) {
	ts := newTestServer(t, false)
	peer := ts.addPeer(t)

	w := ts.do(t, http.MethodPost, "/components/"+peerUUID+"/updates", userBatch())
	require.Equal(t, http.StatusOK, w.Code)
	userID, err := ts.engine.Store().LocalID(store.KindUser, 3, peer.ID)
	require.NoError(t, err)
	id := strconv.FormatInt(*userID, 10)

	w = ts.do(t, http.MethodGet, "/log/users/"+id+"?componentId="+strconv.FormatInt(peer.ID, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IMPORT_USER")

	// singular kind names are accepted too
	w = ts.do(t, http.MethodGet, "/log/user/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown kind", "/log/widgets/1", http.StatusBadRequest},
		{"components are not logged", "/log/components/1", http.StatusBadRequest},
		{"bad id", "/log/users/abc", http.StatusBadRequest},
		{"bad component id", "/log/users/" + id + "?componentId=x", http.StatusBadRequest},
		{"missing entity", "/log/users/999", http.StatusNotFound},
		{"missing component", "/log/users/" + id + "?componentId=999", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.do(t, http.MethodGet, tt.path, nil).Code)
		})
	}
}

func TestShareAndExport(t *testing.T) {
	ts := newTestServer(t, false)
	ts.addPeer(t)

	w := ts.do(t, http.MethodPost, "/components/"+peerUUID+"/shares", map[string]any{
		"objectId": 42,
		"policy":   map[string]any{"access": map[string]any{"data": true}, "permissions": map[string]any{}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/components/"+peerUUID+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var batch map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	assert.Empty(t, batch["objects"])
}
