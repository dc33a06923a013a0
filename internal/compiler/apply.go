package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/store"
)

// Catalog stores collections and link types.
type Catalog interface {
	GetCollection(ctx context.Context, id string) (*ir.Collection, error)
	CreateCollection(ctx context.Context, c *ir.Collection) error
	UpdateCollection(ctx context.Context, c *ir.Collection) error
	GetLinkType(ctx context.Context, id string) (*ir.LinkType, error)
	CreateLinkType(ctx context.Context, l *ir.LinkType) error
	UpdateLinkType(ctx context.Context, l *ir.LinkType) error
}

// ApplyResult lists the schema objects Apply created and updated.
type ApplyResult struct {
	Created []string `json:"created"`
	Updated []string `json:"updated"`
}

// Apply writes a project to the catalog. Existing collections and link
// types keep their counters and the usage counts of attributes that are
// still declared. Collections are written before link types.
func Apply(ctx context.Context, cat Catalog, p *Project) (*ApplyResult, error) {
	res := &ApplyResult{Created: []string{}, Updated: []string{}}

	for _, c := range p.Collections {
		next := c.Clone()
		existing, err := cat.GetCollection(ctx, c.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := cat.CreateCollection(ctx, next); err != nil {
				return res, err
			}
			res.Created = append(res.Created, "collection:"+c.ID)
		case err != nil:
			return res, fmt.Errorf("load collection %s: %w", c.ID, err)
		default:
			keepUsage(next.Attributes, existing.Attributes)
			if err := cat.UpdateCollection(ctx, next); err != nil {
				return res, err
			}
			res.Updated = append(res.Updated, "collection:"+c.ID)
		}
		slog.Debug("collection applied", "collection_id", c.ID, "attributes", len(c.Attributes), "rules", len(c.Rules))
	}

	for _, l := range p.LinkTypes {
		next := l.Clone()
		existing, err := cat.GetLinkType(ctx, l.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := cat.CreateLinkType(ctx, next); err != nil {
				return res, err
			}
			res.Created = append(res.Created, "link_type:"+l.ID)
		case err != nil:
			return res, fmt.Errorf("load link type %s: %w", l.ID, err)
		default:
			keepUsage(next.Attributes, existing.Attributes)
			if err := cat.UpdateLinkType(ctx, next); err != nil {
				return res, err
			}
			res.Updated = append(res.Updated, "link_type:"+l.ID)
		}
		slog.Debug("link type applied", "link_type_id", l.ID, "attributes", len(l.Attributes), "rules", len(l.Rules))
	}

	return res, nil
}

func keepUsage(next, prev []ir.Attribute) {
	counts := make(map[string]int64, len(prev))
	for _, a := range prev {
		counts[a.ID] = a.UsageCount
	}
	for i := range next {
		next[i].UsageCount = counts[next[i].ID]
	}
}
