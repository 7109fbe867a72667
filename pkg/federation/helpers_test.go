package federation

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/store"
)

const (
	localUUID = "28b8d3ca-fb5f-59d9-8090-bfdbd6d07a71"
	peerUUID  = "6b6b2c5f-0d0e-4a57-9e0f-2a4c9d3a1f10"
	thirdUUID = "0f3c6a52-3b0e-4d43-a7c1-5f1b9d8e2c44"
)

var testNow = time.Date(2021, 5, 3, 6, 0, 0, 0, time.UTC)

type testEnv struct {
	engine *Engine
	store  *store.Store
	peer   *store.Component
}

// newTestEnv creates an engine for localUUID that knows peerUUID as a
// component.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvFor(t, localUUID, peerUUID)
}

func newTestEnvFor(t *testing.T, local, peer string) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st := store.New(db, local)
	e := NewEngine(st, WithClock(func() time.Time { return testNow }))
	require.NoError(t, e.AutoMigrate())

	name := "Peer"
	comp, err := st.AddComponent(peer, &name, nil, "")
	require.NoError(t, err)
	return &testEnv{engine: e, store: st, peer: comp}
}

// decode parses a JSON literal the way wire payloads arrive.
func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

// roundTrip sends a value through JSON encoding.
func roundTrip(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func entryTypes(entries []fedlog.Entry) []fedlog.EntryType {
	types := make([]fedlog.EntryType, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	return types
}

func (env *testEnv) logTypes(t *testing.T, kind store.Kind, id int64) []fedlog.EntryType {
	t.Helper()
	entries, err := env.engine.Log().EntriesFor(kind, id, nil)
	require.NoError(t, err)
	return entryTypes(entries)
}

func (env *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.store.DB().Model(model).Count(&n).Error)
	return n
}

const sampleSchema = `{
	"title": "Sample",
	"type": "object",
	"properties": {
		"name": {"title": "Name", "type": "text"},
		"tags": {"title": "Tags", "type": "tags"},
		"operator": {"title": "Operator", "type": "user"},
		"notes": {"title": "Notes", "type": "text", "markdown": true}
	},
	"required": ["name"]
}`

// objectWire builds an object payload owned by peerUUID with one version.
func objectWire(t *testing.T, fedID int64, data string) map[string]any {
	t.Helper()
	obj := decode(t, `{
		"component_uuid": "`+peerUUID+`",
		"versions": [{
			"version_id": 0,
			"user": {"user_id": 3, "component_uuid": "`+peerUUID+`"},
			"utc_datetime": "2021-05-03 05:04:03.020100"
		}],
		"action": {"action_id": 2, "component_uuid": "`+peerUUID+`"},
		"policy": {
			"access": {"data": true, "action": true, "users": true, "files": true, "comments": true, "object_location_assignments": true},
			"permissions": {}
		}
	}`)
	obj["object_id"] = fedID
	version := obj["versions"].([]any)[0].(map[string]any)
	version["data"] = decode(t, data)
	version["schema"] = decode(t, sampleSchema)
	return obj
}
