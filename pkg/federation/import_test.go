package federation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/store"
)

func TestImportObjectCreatesPlaceholders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Import(ctx, store.KindObject,
		objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`), env.peer.ID)
	require.NoError(t, err)

	obj, err := env.store.GetObject(id)
	require.NoError(t, err)
	require.NotNil(t, obj.FedID)
	assert.Equal(t, int64(1), *obj.FedID)
	assert.Equal(t, env.peer.ID, *obj.ComponentID)

	actionID, err := env.store.LocalID(store.KindAction, 2, env.peer.ID)
	require.NoError(t, err)
	require.NotNil(t, actionID)
	assert.Equal(t, actionID, obj.ActionID)

	userID, err := env.store.LocalID(store.KindUser, 3, env.peer.ID)
	require.NoError(t, err)
	require.NotNil(t, userID)
	user, err := env.store.GetUser(*userID)
	require.NoError(t, err)
	assert.Equal(t, store.UserTypeFederationUser, user.Type)
	assert.Nil(t, user.Name)

	versions, err := env.store.GetObjectVersions(id)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, userID, versions[0].UserID)
	assert.Equal(t, "Example", versions[0].Data["name"].(map[string]any)["text"])
	assert.Equal(t, "2021-05-03 05:04:03.020100", versions[0].UTCDatetime.UTC().Format(DatetimeLayout))

	assert.Equal(t, []fedlog.EntryType{"IMPORT_OBJECT"}, env.logTypes(t, store.KindObject, id))
	assert.Equal(t, []fedlog.EntryType{"CREATE_REF_USER"}, env.logTypes(t, store.KindUser, *userID))
	assert.Equal(t, []fedlog.EntryType{"CREATE_REF_ACTION"}, env.logTypes(t, store.KindAction, *actionID))
}

func TestImportObjectTwiceUpdates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.engine.Import(ctx, store.KindObject,
		objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`), env.peer.ID)
	require.NoError(t, err)
	again, err := env.engine.Import(ctx, store.KindObject,
		objectWire(t, 1, `{"name": {"_type": "text", "text": "Renamed"}}`), env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	assert.Equal(t, int64(1), env.count(t, &store.Object{}))
	assert.Equal(t, int64(1), env.count(t, &store.User{}), "the placeholder user is reused")
	assert.Equal(t, int64(1), env.count(t, &store.Action{}))

	versions, err := env.store.GetObjectVersions(id)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	assert.Equal(t, "Renamed", versions[0].Data["name"].(map[string]any)["text"])

	assert.Equal(t, []fedlog.EntryType{"UPDATE_OBJECT", "IMPORT_OBJECT"}, env.logTypes(t, store.KindObject, id))
}

func TestImportObjectIdenticalVersionIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wire := objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`)
	id, err := env.engine.Import(ctx, store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)
	before, err := env.store.GetObjectVersion(id, 0)
	require.NoError(t, err)

	_, err = env.engine.Import(ctx, store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)
	after, err := env.store.GetObjectVersion(id, 0)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.ContentDigest, after.ContentDigest)
}

func TestImportObjectVersionsInOrder(t *testing.T) {
	env := newTestEnv(t)

	wire := objectWire(t, 1, `{"name": {"_type": "text", "text": "Second"}}`)
	versions := wire["versions"].([]any)
	first := deepCopy(versions[0]).(map[string]any)
	versions[0].(map[string]any)["version_id"] = 1
	first["data"] = decode(t, `{"name": {"_type": "text", "text": "First"}}`)
	wire["versions"] = append(versions, first)

	id, err := env.engine.Import(context.Background(), store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)

	stored, err := env.store.GetObjectVersions(id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(0), stored[0].VersionID)
	assert.Equal(t, "First", stored[0].Data["name"].(map[string]any)["text"])

	current, err := env.store.GetCurrentObjectVersion(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.VersionID)
	assert.Equal(t, "Second", current.Data["name"].(map[string]any)["text"])
}

func TestImportObjectAdjustsTagUsage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	uses := func(tag string) int64 {
		n, err := env.store.TagUses(tag)
		require.NoError(t, err)
		return n
	}

	tagged := func(tags string) map[string]any {
		return objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}, "tags": {"_type": "tags", "tags": `+tags+`}}`)
	}

	_, err := env.engine.Import(ctx, store.KindObject, tagged(`["buffer", "ph7"]`), env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uses("buffer"))
	assert.Equal(t, int64(1), uses("ph7"))

	_, err = env.engine.Import(ctx, store.KindObject, tagged(`["buffer", "ph7"]`), env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), uses("buffer"), "re-importing the same tags does not count twice")

	_, err = env.engine.Import(ctx, store.KindObject, tagged(`["ph7", "stock"]`), env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), uses("buffer"))
	assert.Equal(t, int64(1), uses("ph7"))
	assert.Equal(t, int64(1), uses("stock"))
}

func TestImportObjectLocalizesDataReferences(t *testing.T) {
	env := newTestEnv(t)

	name := "Local Operator"
	local := &store.User{Name: &name, Type: store.UserTypePerson}
	require.NoError(t, env.store.SaveUser(local))

	wire := objectWire(t, 1, `{
		"name": {"_type": "text", "text": "Example"},
		"operator": {"_type": "user", "user_id": `+itoa(local.ID)+`, "component_uuid": "`+localUUID+`"}
	}`)
	id, err := env.engine.Import(context.Background(), store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)

	current, err := env.store.GetCurrentObjectVersion(id)
	require.NoError(t, err)
	operator := current.Data["operator"].(map[string]any)
	id64, ok := operator["user_id"].(float64)
	require.True(t, ok)
	assert.Equal(t, local.ID, int64(id64))
	assert.NotContains(t, operator, "component_uuid")
	assert.Equal(t, int64(2), env.count(t, &store.User{}), "local user plus the version author placeholder")

	// the wire payload is not rewritten in place
	wireOperator := wire["versions"].([]any)[0].(map[string]any)["data"].(map[string]any)["operator"].(map[string]any)
	assert.Equal(t, localUUID, wireOperator["component_uuid"])
}

func TestImportObjectForeignDataReferenceCreatesPlaceholder(t *testing.T) {
	env := newTestEnv(t)

	wire := objectWire(t, 1, `{
		"name": {"_type": "text", "text": "Example"},
		"operator": {"_type": "user", "user_id": 9, "component_uuid": "`+thirdUUID+`"}
	}`)
	_, err := env.engine.Import(context.Background(), store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)

	third, err := env.store.GetComponentByUUID(thirdUUID)
	require.NoError(t, err, "unknown components are registered on first sight")
	id, err := env.store.LocalID(store.KindUser, 9, third.ID)
	require.NoError(t, err)
	assert.NotNil(t, id)
}

func TestImportMissingLocalReference(t *testing.T) {
	env := newTestEnv(t)

	wire := objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`)
	wire["action"] = map[string]any{"action_id": 42, "component_uuid": localUUID}
	id, err := env.engine.Import(context.Background(), store.KindObject, wire, env.peer.ID)
	require.NoError(t, err, "optional references to missing local entities are dropped")

	obj, err := env.store.GetObject(id)
	require.NoError(t, err)
	assert.Nil(t, obj.ActionID)
	assert.Equal(t, int64(0), env.count(t, &store.Action{}))
}

func TestImportActionRequiresLocalActionType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Import(context.Background(), store.KindAction, decode(t, `{
		"action_id": 2,
		"component_uuid": "`+peerUUID+`",
		"action_type": {"action_type_id": 99, "component_uuid": "`+localUUID+`"},
		"translations": [{"language_code": "en", "name": "Measure"}]
	}`), env.peer.ID)
	assert.ErrorIs(t, err, store.ErrActionTypeDoesNotExist)
	assert.Equal(t, int64(0), env.count(t, &store.Action{}))
}

func TestImportActionStubsActionType(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.engine.Import(context.Background(), store.KindAction, decode(t, `{
		"action_id": 2,
		"component_uuid": "`+peerUUID+`",
		"action_type": {"action_type_id": 7, "component_uuid": "`+peerUUID+`"},
		"translations": [{"language_code": "en", "name": "Measure", "description": "**bold**"}],
		"description_is_markdown": true
	}`), env.peer.ID)
	require.NoError(t, err)

	action, err := env.store.GetAction(id)
	require.NoError(t, err)
	require.NotNil(t, action.ActionTypeID)
	at, err := env.store.GetActionType(*action.ActionTypeID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), *at.FedID)
	assert.Equal(t, "Measure", action.Translations["en"]["name"])
	assert.True(t, action.DescriptionIsMarkdown)
}

func TestImportLocalEntityIsNotUpdated(t *testing.T) {
	env := newTestEnv(t)

	name := "Local"
	local := &store.User{Name: &name, Type: store.UserTypePerson}
	require.NoError(t, env.store.SaveUser(local))

	id, err := env.engine.Import(context.Background(), store.KindUser, map[string]any{
		"user_id":        local.ID,
		"component_uuid": localUUID,
		"name":           "Overwritten",
	}, env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, local.ID, id)

	got, err := env.store.GetUser(local.ID)
	require.NoError(t, err)
	assert.Equal(t, "Local", *got.Name)
	assert.Nil(t, got.ComponentID)
}

func TestImportUserIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wire := decode(t, `{"user_id": 3, "component_uuid": "`+peerUUID+`", "name": "Jane", "orcid": "0000-0002-1825-0097"}`)
	id, err := env.engine.Import(ctx, store.KindUser, wire, env.peer.ID)
	require.NoError(t, err)
	again, err := env.engine.Import(ctx, store.KindUser, wire, env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, int64(1), env.count(t, &store.User{}))

	u, err := env.store.GetUser(id)
	require.NoError(t, err)
	assert.Equal(t, "Jane", *u.Name)
	assert.Equal(t, []fedlog.EntryType{"UPDATE_USER", "IMPORT_USER"}, env.logTypes(t, store.KindUser, id))
}

func TestImportPlaceholderThenFullEntity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Import(ctx, store.KindObject,
		objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`), env.peer.ID)
	require.NoError(t, err)

	id, err := env.engine.Import(ctx, store.KindUser,
		decode(t, `{"user_id": 3, "component_uuid": "`+peerUUID+`", "name": "Jane"}`), env.peer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), env.count(t, &store.User{}), "the placeholder row is filled in")
	assert.Equal(t, []fedlog.EntryType{"UPDATE_USER", "CREATE_REF_USER"}, env.logTypes(t, store.KindUser, id))
}

func TestImportObjectWithNestedEntities(t *testing.T) {
	env := newTestEnv(t)

	wire := objectWire(t, 1, `{"name": {"_type": "text", "text": "Example"}}`)
	wire["comments"] = []any{decode(t, `{
		"comment_id": 10,
		"component_uuid": "`+peerUUID+`",
		"object": {"object_id": 1, "component_uuid": "`+peerUUID+`"},
		"user": {"user_id": 3, "component_uuid": "`+peerUUID+`"},
		"content": "looks good",
		"utc_datetime": "2021-05-03 05:10:00.000000"
	}`)}
	wire["files"] = []any{decode(t, `{
		"file_id": 11,
		"component_uuid": "`+peerUUID+`",
		"utc_datetime": "2021-05-03 05:11:00.000000",
		"data": {"storage": "url", "url": "https://example.org/raw.csv"}
	}`)}
	wire["object_location_assignments"] = []any{decode(t, `{
		"id": 12,
		"component_uuid": "`+peerUUID+`",
		"location": {"location_id": 4, "component_uuid": "`+peerUUID+`"},
		"description": {"en": "shelf 3"},
		"utc_datetime": "2021-05-03 05:12:00.000000",
		"confirmed": true
	}`)}

	id, err := env.engine.Import(context.Background(), store.KindObject, wire, env.peer.ID)
	require.NoError(t, err)

	comments, err := env.store.GetComments(id)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "looks good", comments[0].Content)

	files, err := env.store.GetFiles(id)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "url", files[0].Data["storage"])

	olas, err := env.store.GetObjectLocationAssignments(id)
	require.NoError(t, err)
	require.Len(t, olas, 1)
	assert.True(t, olas[0].Confirmed)
	assert.Equal(t, "shelf 3", olas[0].Description["en"])
	require.NotNil(t, olas[0].LocationID)
	loc, err := env.store.GetLocation(*olas[0].LocationID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), *loc.FedID)

	assert.Equal(t, []fedlog.EntryType{"IMPORT_COMMENT"}, env.logTypes(t, store.KindComment, comments[0].ID))
}

func TestImportStandaloneCommentRequiresObject(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Import(context.Background(), store.KindComment, decode(t, `{
		"comment_id": 10,
		"component_uuid": "`+peerUUID+`",
		"content": "orphan",
		"utc_datetime": "2021-05-03 05:10:00.000000"
	}`), env.peer.ID)
	assert.ErrorIs(t, err, ErrInvalidDataExport)
}

func TestImportMarkdownImages(t *testing.T) {
	env := newTestEnv(t)

	obj := objectWire(t, 1, `{
		"name": {"_type": "text", "text": "Example"},
		"notes": {"_type": "text", "text": "see ![plot](/markdown_images/plot.png)", "is_markdown": true}
	}`)
	batch := map[string]any{
		"objects":         []any{obj},
		"markdown_images": map[string]any{"plot.png": "aGVsbG8="},
	}
	_, err := env.engine.UpdateShares(context.Background(), env.peer.ID, batch)
	require.NoError(t, err)

	objID, err := env.store.LocalID(store.KindObject, 1, env.peer.ID)
	require.NoError(t, err)
	current, err := env.store.GetCurrentObjectVersion(*objID)
	require.NoError(t, err)
	notes := current.Data["notes"].(map[string]any)
	assert.Equal(t, "see ![plot](/markdown_images/"+peerUUID+"/plot.png)", notes["text"])

	img, err := env.store.GetMarkdownImage(peerUUID + "/plot.png")
	require.NoError(t, err)
	require.NotNil(t, img)
	assert.Equal(t, []byte("hello"), img.Content)
	assert.True(t, img.Permanent)
}

func TestImportUnknownComponent(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Import(context.Background(), store.KindUser,
		decode(t, `{"user_id": 3, "component_uuid": "`+peerUUID+`"}`), 999)
	assert.ErrorIs(t, err, store.ErrComponentDoesNotExist)
}
