package federation

import (
	"errors"

	"github.com/sampledb/sampledb/pkg/store"
)

// ParentGraph is a forest in which every node has at most one parent.
type ParentGraph[N comparable] interface {
	ParentOf(node N) (parent N, ok bool, err error)
}

// FindCycle follows the parent chain of every start node and returns a node
// that is reachable from itself, if any.
func FindCycle[N comparable](g ParentGraph[N], starts []N) (N, bool, error) {
	var zero N
	visited := map[N]bool{}
	for _, start := range starts {
		if visited[start] {
			continue
		}
		onChain := map[N]bool{}
		node := start
		for {
			if onChain[node] {
				return node, true, nil
			}
			if visited[node] {
				// joins a chain that is already known to be acyclic
				break
			}
			onChain[node] = true
			parent, ok, err := g.ParentOf(node)
			if err != nil {
				return zero, false, err
			}
			if !ok {
				break
			}
			node = parent
		}
		for n := range onChain {
			visited[n] = true
		}
	}
	return zero, false, nil
}

// locationGraph resolves parents from the batch about to be imported and,
// for locations outside the batch, from storage.
type locationGraph struct {
	e     *Engine
	batch map[Identity]*ParsedLocation
}

func (g *locationGraph) ParentOf(node Identity) (Identity, bool, error) {
	if loc, ok := g.batch[node]; ok {
		if loc.Parent == nil {
			return Identity{}, false, nil
		}
		return Identity{Kind: store.KindLocation, FedID: loc.Parent.FedID, ComponentUUID: loc.Parent.ComponentUUID}, true, nil
	}

	id, err := g.localID(node)
	if err != nil || id == nil {
		return Identity{}, false, err
	}
	parentID, err := g.e.store.ParentLocationID(*id)
	if err != nil || parentID == nil {
		return Identity{}, false, err
	}
	fedID, componentID, err := g.e.store.FederationIdentity(store.KindLocation, *parentID)
	if err != nil {
		return Identity{}, false, err
	}
	if componentID == nil {
		return Identity{Kind: store.KindLocation, FedID: *parentID, ComponentUUID: g.e.store.LocalUUID()}, true, nil
	}
	componentUUID, err := g.e.store.ComponentUUID(componentID)
	if err != nil {
		return Identity{}, false, err
	}
	return Identity{Kind: store.KindLocation, FedID: *fedID, ComponentUUID: componentUUID}, true, nil
}

// localID finds the stored row of a node; unknown nodes have no parent.
func (g *locationGraph) localID(node Identity) (*int64, error) {
	if g.e.store.IsLocalUUID(node.ComponentUUID) {
		ok, err := g.e.store.Exists(store.KindLocation, node.FedID)
		if err != nil || !ok {
			return nil, err
		}
		id := node.FedID
		return &id, nil
	}
	comp, err := g.e.store.GetComponentByUUID(node.ComponentUUID)
	if err != nil {
		if errors.Is(err, store.ErrComponentDoesNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return g.e.store.LocalID(store.KindLocation, node.FedID, comp.ID)
}

// checkLocationCycles rejects locations whose parent chains, combined with
// the stored location tree, would contain a cycle.
func (e *Engine) checkLocationCycles(locations []*ParsedLocation) error {
	g := &locationGraph{e: e, batch: map[Identity]*ParsedLocation{}}
	starts := make([]Identity, 0, len(locations))
	for _, loc := range locations {
		if e.store.IsLocalUUID(loc.ComponentUUID) {
			// local locations are never updated by imports
			continue
		}
		ident := identityOf(store.KindLocation, loc)
		g.batch[ident] = loc
		starts = append(starts, ident)
	}
	node, found, err := FindCycle[Identity](g, starts)
	if err != nil {
		return err
	}
	if found {
		return invalidf("locations", "cyclic parent location chain through location %d of component %s",
			node.FedID, node.ComponentUUID)
	}
	return nil
}
