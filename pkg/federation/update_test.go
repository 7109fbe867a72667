package federation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/permissions"
	"github.com/sampledb/sampledb/pkg/store"
	"github.com/sampledb/sampledb/pkg/tasks"
)

// fullBatch is an update batch in which every reference resolves within the
// batch.
func fullBatch(t *testing.T) map[string]any {
	t.Helper()
	return decode(t, `{
		"objects": [{
			"object_id": 1,
			"component_uuid": "`+peerUUID+`",
			"action": {"action_id": 2, "component_uuid": "`+peerUUID+`"},
			"versions": [{
				"version_id": 0,
				"user": {"user_id": 3, "component_uuid": "`+peerUUID+`"},
				"utc_datetime": "2021-05-03 05:04:03.020100",
				"schema": `+sampleSchema+`,
				"data": {
					"name": {"_type": "text", "text": "Example"},
					"operator": {"_type": "user", "user_id": 3, "component_uuid": "`+peerUUID+`"}
				}
			}],
			"policy": {"access": {"data": true, "action": true, "users": true}}
		}],
		"actions": [{
			"action_id": 2,
			"component_uuid": "`+peerUUID+`",
			"action_type": {"action_type_id": 5, "component_uuid": "`+peerUUID+`"},
			"instrument": {"instrument_id": 6, "component_uuid": "`+peerUUID+`"},
			"translations": [{"language_code": "en", "name": "Measure"}]
		}],
		"action_types": [{
			"action_type_id": 5,
			"component_uuid": "`+peerUUID+`",
			"enable_comments": true,
			"translations": [{"language_code": "en", "name": "Measurement"}]
		}],
		"instruments": [{
			"instrument_id": 6,
			"component_uuid": "`+peerUUID+`",
			"translations": [{"language_code": "en", "name": "XRD"}]
		}],
		"users": [{"user_id": 3, "component_uuid": "`+peerUUID+`", "name": "Jane"}],
		"unexpected": true
	}`)
}

func TestUpdateSharesImportsWholeBatch(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.UpdateShares(context.Background(), env.peer.ID, fullBatch(t))
	require.NoError(t, err)
	for _, kind := range []store.Kind{store.KindUser, store.KindActionType, store.KindInstrument, store.KindAction, store.KindObject} {
		assert.Equal(t, 1, result.Imported[kind], kind)
	}
	assert.Empty(t, result.Stubs)
	assert.Equal(t, "imported 5, updated 0, placeholders 0", result.Summary())

	userID, err := env.store.LocalID(store.KindUser, 3, env.peer.ID)
	require.NoError(t, err)
	user, err := env.store.GetUser(*userID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", *user.Name)

	actionID, err := env.store.LocalID(store.KindAction, 2, env.peer.ID)
	require.NoError(t, err)
	action, err := env.store.GetAction(*actionID)
	require.NoError(t, err)
	actionType, err := env.store.GetActionType(*action.ActionTypeID)
	require.NoError(t, err)
	assert.True(t, actionType.EnableComments)
	assert.Equal(t, "Measurement", actionType.Translations["en"]["name"])

	objID, err := env.store.LocalID(store.KindObject, 1, env.peer.ID)
	require.NoError(t, err)
	current, err := env.store.GetCurrentObjectVersion(*objID)
	require.NoError(t, err)
	operator := current.Data["operator"].(map[string]any)
	assert.Equal(t, float64(*userID), operator["user_id"])

	// no placeholders were needed, so every entity has exactly one entry
	assert.Equal(t, []fedlog.EntryType{"IMPORT_USER"}, env.logTypes(t, store.KindUser, *userID))

	peer, err := env.store.GetComponent(env.peer.ID)
	require.NoError(t, err)
	require.NotNil(t, peer.LastSyncTimestamp)
	assert.True(t, peer.LastSyncTimestamp.Equal(testNow))
}

func TestUpdateSharesSecondRunUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.UpdateShares(ctx, env.peer.ID, fullBatch(t))
	require.NoError(t, err)
	result, err := env.engine.UpdateShares(ctx, env.peer.ID, fullBatch(t))
	require.NoError(t, err)
	assert.Empty(t, result.Imported)
	assert.Equal(t, 1, result.Updated[store.KindObject])
	assert.Equal(t, int64(1), env.count(t, &store.User{}))
	assert.Equal(t, int64(1), env.count(t, &store.Object{}))
}

func TestUpdateSharesRollsBackOnError(t *testing.T) {
	env := newTestEnv(t)

	batch := decode(t, `{
		"users": [{"user_id": 3, "component_uuid": "`+peerUUID+`", "name": "Jane"}],
		"actions": [{
			"action_id": 2,
			"component_uuid": "`+peerUUID+`",
			"action_type": {"action_type_id": 99, "component_uuid": "`+localUUID+`"},
			"translations": [{"language_code": "en", "name": "Measure"}]
		}]
	}`)
	_, err := env.engine.UpdateShares(context.Background(), env.peer.ID, batch)
	require.ErrorIs(t, err, store.ErrActionTypeDoesNotExist)

	assert.Equal(t, int64(0), env.count(t, &store.User{}))
	assert.Equal(t, int64(0), env.count(t, &store.Action{}))
	entries, err := env.engine.Log().EntriesForComponent(env.peer.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	peer, err := env.store.GetComponent(env.peer.ID)
	require.NoError(t, err)
	assert.Nil(t, peer.LastSyncTimestamp)
}

func TestUpdateSharesParsesBeforeWriting(t *testing.T) {
	env := newTestEnv(t)

	batch := decode(t, `{
		"users": [
			{"user_id": 3, "component_uuid": "`+peerUUID+`"},
			{"user_id": -1, "component_uuid": "`+peerUUID+`"}
		]
	}`)
	_, err := env.engine.UpdateShares(context.Background(), env.peer.ID, batch)
	requireInvalid(t, err, "users.1.user_id")
	assert.Equal(t, int64(0), env.count(t, &store.User{}))
}

func TestParseBatchErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.ParseBatch(map[string]any{"users": map[string]any{}})
	requireInvalid(t, err, "users")

	_, err = env.engine.ParseBatch(map[string]any{"markdown_images": map[string]any{"a.png": "%%%"}})
	requireInvalid(t, err, "markdown_images.a.png")

	batch, err := env.engine.ParseBatch(map[string]any{"markdown_images": map[string]any{"a.png": "aGVsbG8="}})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), batch.Images["a.png"])
}

func TestUpdateSharesAppliesPermissions(t *testing.T) {
	env := newTestEnv(t)

	name := "Local"
	local := &store.User{Name: &name, Type: store.UserTypePerson}
	require.NoError(t, env.store.SaveUser(local))
	group, err := env.store.CreateGroup("Chemists")
	require.NoError(t, err)
	ceiling := "read"
	capped, err := env.store.CreateProject("Capped", &ceiling)
	require.NoError(t, err)
	open, err := env.store.CreateProject("Open", nil)
	require.NoError(t, err)

	obj := objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`)
	obj["policy"] = map[string]any{
		"access": map[string]any{"data": true},
		"permissions": map[string]any{
			"users":     map[string]any{itoa(local.ID): "write", "999": "grant"},
			"groups":    map[string]any{itoa(group.ID): "read", "998": "read"},
			"projects":  map[string]any{itoa(capped.ID): "grant", itoa(open.ID): "grant", "997": "read"},
			"all_users": "read",
		},
	}
	_, err = env.engine.UpdateShares(context.Background(), env.peer.ID, map[string]any{"objects": []any{obj}})
	require.NoError(t, err)

	objID, err := env.store.LocalID(store.KindObject, 1, env.peer.ID)
	require.NoError(t, err)
	grants, err := env.engine.Permissions().GetObjectGrants(*objID)
	require.NoError(t, err)

	assert.Equal(t, map[int64]permissions.Level{local.ID: permissions.Write}, grants.Users)
	assert.Equal(t, map[int64]permissions.Level{group.ID: permissions.Read}, grants.Groups)
	assert.Equal(t, map[int64]permissions.Level{
		capped.ID: permissions.Read,
		open.ID:   permissions.Grant,
	}, grants.Projects)
	assert.Equal(t, permissions.Read, grants.AllUsers)
}

func TestUpdateSharesUnknownComponent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.UpdateShares(context.Background(), 404, map[string]any{})
	assert.ErrorIs(t, err, store.ErrComponentDoesNotExist)
}

func TestUpdateSharesTask(t *testing.T) {
	env := newTestEnv(t)

	taskStore := tasks.NewTaskStore(env.store.DB())
	require.NoError(t, taskStore.AutoMigrate())
	cfg := tasks.DefaultConfig()
	cfg.Concurrency = 1
	svc := tasks.NewService(taskStore, cfg, nil)
	env.engine.RegisterTasks(svc)

	task, err := svc.Enqueue(tasks.TaskTypeUpdateShares, env.peer.ID, fullBatch(t), "batch-1")
	require.NoError(t, err)
	require.True(t, svc.ProcessOne(context.Background(), 0))

	got, err := taskStore.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStateSucceeded, got.State)
	assert.Equal(t, "imported 5, updated 0, placeholders 0", got.Result)
	assert.Equal(t, int64(1), env.count(t, &store.Object{}))
}

func TestImportEntityTask(t *testing.T) {
	env := newTestEnv(t)

	taskStore := tasks.NewTaskStore(env.store.DB())
	require.NoError(t, taskStore.AutoMigrate())
	svc := tasks.NewService(taskStore, tasks.DefaultConfig(), nil)
	env.engine.RegisterTasks(svc)

	task, err := svc.Enqueue(tasks.TaskTypeImportEntity, env.peer.ID, map[string]any{
		"kind":   "user",
		"entity": map[string]any{"user_id": 3, "component_uuid": peerUUID, "name": "Jane"},
	}, "")
	require.NoError(t, err)
	require.True(t, svc.ProcessOne(context.Background(), 0))

	got, err := taskStore.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, tasks.TaskStateSucceeded, got.State)
	assert.Contains(t, got.Result, "imported user #")

	bad, err := svc.Enqueue(tasks.TaskTypeImportEntity, env.peer.ID, map[string]any{"kind": "components"}, "")
	require.NoError(t, err)
	require.True(t, svc.ProcessOne(context.Background(), 0))
	got, err = taskStore.Get(bad.ID)
	require.NoError(t, err)
	assert.Contains(t, got.LastError, "unknown entity kind")
}
