package store

import (
	"context"
	"fmt"
)

// Preparation is the setup of one collection before load starts.
type Preparation struct {
	Database   string
	Collection string
	Drop       bool
	Indexes    []Index
}

// Prepare drops the collection when requested and creates its indexes. It
// returns the names of the created indexes.
func Prepare(ctx context.Context, st Store, p Preparation) ([]string, error) {
	coll := st.Collection(p.Database, p.Collection)

	if p.Drop {
		if err := coll.Drop(ctx); err != nil {
			return nil, fmt.Errorf("drop %s.%s: %w", p.Database, p.Collection, err)
		}
	}

	names := make([]string, 0, len(p.Indexes))
	for _, idx := range p.Indexes {
		name, err := coll.CreateIndex(ctx, idx)
		if err != nil {
			return names, fmt.Errorf("create index %v on %s.%s: %w", idx.Keys, p.Database, p.Collection, err)
		}
		names = append(names, name)
	}
	return names, nil
}
