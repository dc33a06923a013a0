package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/automaton/internal/ir"
)

// CreateCollection inserts a collection. An empty ID is generated.
func (s *Store) CreateCollection(ctx context.Context, c *ir.Collection) error {
	if c.ID == "" {
		c.ID = s.ids.Generate()
	}
	attrs, err := marshalJSON(c.Attributes)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", c.ID, err)
	}
	rules, err := marshalJSON(c.Rules)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", c.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, attributes, rules, documents_count)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Name, attrs, rules, c.DocumentsCount)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", c.ID, err)
	}
	return nil
}

// UpdateCollection replaces a collection's name, attributes and rules.
// The documents counter is left alone.
func (s *Store) UpdateCollection(ctx context.Context, c *ir.Collection) error {
	attrs, err := marshalJSON(c.Attributes)
	if err != nil {
		return fmt.Errorf("update collection %s: %w", c.ID, err)
	}
	rules, err := marshalJSON(c.Rules)
	if err != nil {
		return fmt.Errorf("update collection %s: %w", c.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET name = ?, attributes = ?, rules = ? WHERE id = ?
	`, c.Name, attrs, rules, c.ID)
	if err != nil {
		return fmt.Errorf("update collection %s: %w", c.ID, err)
	}
	return expectRow(res, "collection", c.ID)
}

// SaveCollectionCounters writes back the documents counter and attribute
// usage counters held in c. Concurrent writers follow last-writer-wins.
func (s *Store) SaveCollectionCounters(ctx context.Context, c *ir.Collection) error {
	attrs, err := marshalJSON(c.Attributes)
	if err != nil {
		return fmt.Errorf("save collection counters %s: %w", c.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET attributes = ?, documents_count = ? WHERE id = ?
	`, attrs, c.DocumentsCount, c.ID)
	if err != nil {
		return fmt.Errorf("save collection counters %s: %w", c.ID, err)
	}
	return expectRow(res, "collection", c.ID)
}

// GetCollection returns the collection or an error wrapping ErrNotFound.
func (s *Store) GetCollection(ctx context.Context, id string) (*ir.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, attributes, rules, documents_count FROM collections WHERE id = ?
	`, id)
	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", id, err)
	}
	return c, nil
}

// ListCollections returns all collections ordered by id.
func (s *Store) ListCollections(ctx context.Context) ([]*ir.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, attributes, rules, documents_count FROM collections
		ORDER BY id ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	out := []*ir.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return out, nil
}

// CreateLinkType inserts a link type. An empty ID is generated.
func (s *Store) CreateLinkType(ctx context.Context, l *ir.LinkType) error {
	if l.ID == "" {
		l.ID = s.ids.Generate()
	}
	attrs, err := marshalJSON(l.Attributes)
	if err != nil {
		return fmt.Errorf("create link type %s: %w", l.ID, err)
	}
	rules, err := marshalJSON(l.Rules)
	if err != nil {
		return fmt.Errorf("create link type %s: %w", l.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO link_types (id, name, collection_id1, collection_id2, attributes, rules, links_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.Name, l.CollectionIDs[0], l.CollectionIDs[1], attrs, rules, l.LinksCount)
	if err != nil {
		return fmt.Errorf("create link type %s: %w", l.ID, err)
	}
	return nil
}

// UpdateLinkType replaces a link type's name, collections, attributes and
// rules. The links counter is left alone.
func (s *Store) UpdateLinkType(ctx context.Context, l *ir.LinkType) error {
	attrs, err := marshalJSON(l.Attributes)
	if err != nil {
		return fmt.Errorf("update link type %s: %w", l.ID, err)
	}
	rules, err := marshalJSON(l.Rules)
	if err != nil {
		return fmt.Errorf("update link type %s: %w", l.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE link_types
		SET name = ?, collection_id1 = ?, collection_id2 = ?, attributes = ?, rules = ?
		WHERE id = ?
	`, l.Name, l.CollectionIDs[0], l.CollectionIDs[1], attrs, rules, l.ID)
	if err != nil {
		return fmt.Errorf("update link type %s: %w", l.ID, err)
	}
	return expectRow(res, "link type", l.ID)
}

// SaveLinkTypeCounters writes back the links counter and attribute usage
// counters held in l.
func (s *Store) SaveLinkTypeCounters(ctx context.Context, l *ir.LinkType) error {
	attrs, err := marshalJSON(l.Attributes)
	if err != nil {
		return fmt.Errorf("save link type counters %s: %w", l.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE link_types SET attributes = ?, links_count = ? WHERE id = ?
	`, attrs, l.LinksCount, l.ID)
	if err != nil {
		return fmt.Errorf("save link type counters %s: %w", l.ID, err)
	}
	return expectRow(res, "link type", l.ID)
}

// GetLinkType returns the link type or an error wrapping ErrNotFound.
func (s *Store) GetLinkType(ctx context.Context, id string) (*ir.LinkType, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, collection_id1, collection_id2, attributes, rules, links_count
		FROM link_types WHERE id = ?
	`, id)
	l, err := scanLinkType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link type %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link type %s: %w", id, err)
	}
	return l, nil
}

// LinkTypesForCollection returns the link types with the collection on
// either side, ordered by id.
func (s *Store) LinkTypesForCollection(ctx context.Context, collectionID string) ([]*ir.LinkType, error) {
	return s.listLinkTypes(ctx, `
		SELECT id, name, collection_id1, collection_id2, attributes, rules, links_count
		FROM link_types WHERE collection_id1 = ? OR collection_id2 = ?
		ORDER BY id ASC COLLATE BINARY
	`, collectionID, collectionID)
}

// ListLinkTypes returns all link types ordered by id.
func (s *Store) ListLinkTypes(ctx context.Context) ([]*ir.LinkType, error) {
	return s.listLinkTypes(ctx, `
		SELECT id, name, collection_id1, collection_id2, attributes, rules, links_count
		FROM link_types ORDER BY id ASC COLLATE BINARY
	`)
}

func (s *Store) listLinkTypes(ctx context.Context, query string, args ...any) ([]*ir.LinkType, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list link types: %w", err)
	}
	defer rows.Close()

	out := []*ir.LinkType{}
	for rows.Next() {
		l, err := scanLinkType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link types: %w", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*ir.Collection, error) {
	var c ir.Collection
	var attrs, rules string
	if err := row.Scan(&c.ID, &c.Name, &attrs, &rules, &c.DocumentsCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &c.Attributes); err != nil {
		return nil, fmt.Errorf("collection %s attributes: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(rules), &c.Rules); err != nil {
		return nil, fmt.Errorf("collection %s rules: %w", c.ID, err)
	}
	return &c, nil
}

func scanLinkType(row scanner) (*ir.LinkType, error) {
	var l ir.LinkType
	var attrs, rules string
	if err := row.Scan(&l.ID, &l.Name, &l.CollectionIDs[0], &l.CollectionIDs[1], &attrs, &rules, &l.LinksCount); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &l.Attributes); err != nil {
		return nil, fmt.Errorf("link type %s attributes: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(rules), &l.Rules); err != nil {
		return nil, fmt.Errorf("link type %s rules: %w", l.ID, err)
	}
	return &l, nil
}

func expectRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
