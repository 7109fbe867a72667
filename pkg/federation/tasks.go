package federation

import (
	"context"
	"fmt"

	"github.com/sampledb/sampledb/pkg/store"
	"github.com/sampledb/sampledb/pkg/tasks"
)

// RegisterTasks installs the federation task handlers on svc.
func (e *Engine) RegisterTasks(svc *tasks.Service) {
	svc.Register(tasks.TaskTypeUpdateShares, e.updateSharesTask)
	svc.Register(tasks.TaskTypeImportEntity, e.importEntityTask)
}

// updateSharesTask imports the update batch stored as task payload.
func (e *Engine) updateSharesTask(ctx context.Context, task *tasks.Task) (string, error) {
	result, err := e.UpdateShares(ctx, task.ComponentID, task.Payload)
	if err != nil {
		return "", err
	}
	return result.Summary(), nil
}

// importEntityTask imports a single entity. The payload is
// {"kind": <table name>, "entity": <wire payload>}.
func (e *Engine) importEntityTask(ctx context.Context, task *tasks.Task) (string, error) {
	rawKind, _ := task.Payload["kind"].(string)
	kind, ok := store.ParseKind(rawKind)
	if !ok || kind == store.KindComponent {
		return "", fmt.Errorf("unknown entity kind %q", rawKind)
	}
	entity, ok := task.Payload["entity"].(map[string]any)
	if !ok {
		return "", invalidf("entity", "must be a mapping")
	}
	id, err := e.Import(ctx, kind, entity, task.ComponentID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("imported %s #%d", kind.Singular(), id), nil
}

// Summary renders the counts as a short human readable line.
func (r *UpdateResult) Summary() string {
	return fmt.Sprintf("imported %d, updated %d, placeholders %d",
		total(r.Imported), total(r.Updated), total(r.Stubs))
}

func total(counts map[store.Kind]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}
