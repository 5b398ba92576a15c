package orchestrator

import (
	"sync"

	"github.com/kyleking/qik-trak/internal/types"
)

// MergeRelationships returns one descriptor per foreign key edge followed by the view
// descriptors whose column pair no foreign key already covers. View descriptors that
// duplicate an edge (or an earlier view descriptor) are returned as dropped.
func MergeRelationships(edges []types.ForeignKeyEdge, viewRels []types.RelationshipDescriptor) (merged, dropped []types.RelationshipDescriptor) {
	seen := make(map[string]bool, len(edges)+len(viewRels))

	for _, e := range edges {
		d := e.Descriptor()
		if seen[d.Key()] {
			continue
		}

		seen[d.Key()] = true
		merged = append(merged, d)
	}

	for _, d := range viewRels {
		if seen[d.Key()] {
			dropped = append(dropped, d)
			continue
		}

		seen[d.Key()] = true
		merged = append(merged, d)
	}

	return merged, dropped
}

// pendingRelationships collects view-declared relationships until the relationship phase
type pendingRelationships struct {
	mu    sync.Mutex
	items []types.RelationshipDescriptor
}

func (p *pendingRelationships) Add(items ...types.RelationshipDescriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.items = append(p.items, items...)
}

// Drain returns the collected relationships and empties the set
func (p *pendingRelationships) Drain() []types.RelationshipDescriptor {
	p.mu.Lock()
	defer p.mu.Unlock()

	items := p.items
	p.items = nil

	return items
}
