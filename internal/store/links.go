package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
	"github.com/roach88/automaton/internal/querysql"
)

// CreateLink persists a new link instance and returns the stored copy.
func (s *Store) CreateLink(ctx context.Context, link *ir.LinkInstance) (*ir.LinkInstance, error) {
	stored := link.Clone()
	if stored.ID == "" {
		stored.ID = s.ids.Generate()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = fromMillis(s.timestamp())
	}
	data, err := marshalData(stored.Data)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO link_instances
		(id, link_type_id, document_id1, document_id2, data, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stored.ID,
		stored.LinkTypeID,
		stored.DocumentIDs[0],
		stored.DocumentIDs[1],
		data,
		stored.CreatedBy,
		stored.UpdatedBy,
		toMillis(stored.CreatedAt),
		toMillis(stored.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return stored, nil
}

// GetLink returns the link instance or an error wrapping ErrNotFound.
func (s *Store) GetLink(ctx context.Context, id string) (*ir.LinkInstance, error) {
	return getLink(ctx, s.db, id)
}

// LinksForDocument returns the links with documentID on either end.
// An empty linkTypeID matches every link type.
func (s *Store) LinksForDocument(ctx context.Context, documentID, linkTypeID string) ([]*ir.LinkInstance, error) {
	if linkTypeID != "" {
		return s.SearchLinks(ctx, query.Links{LinkTypeID: linkTypeID, Filter: query.LinkedTo{DocumentID: documentID}})
	}
	return s.queryLinks(ctx, `
		SELECT `+querysql.LinkColumns+` FROM link_instances
		WHERE document_id1 = ? OR document_id2 = ?
		ORDER BY id ASC COLLATE BINARY
	`, documentID, documentID)
}

// SearchLinks runs a links query.
func (s *Store) SearchLinks(ctx context.Context, q query.Links) ([]*ir.LinkInstance, error) {
	sqlText, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("search links: %w", err)
	}
	return s.queryLinks(ctx, sqlText, params...)
}

// PatchLinkData merges patch into the stored attribute map of a link.
func (s *Store) PatchLinkData(ctx context.Context, id string, patch ir.IRObject) (*ir.LinkInstance, error) {
	var out *ir.LinkInstance
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		link, err := getLink(ctx, tx, id)
		if err != nil {
			return err
		}
		if link.Data == nil {
			link.Data = ir.IRObject{}
		}
		for k, v := range patch {
			link.Data[k] = v
		}
		data, err := marshalData(link.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE link_instances SET data = ? WHERE id = ?`, data, id); err != nil {
			return fmt.Errorf("update link data %s: %w", id, err)
		}
		out = link
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("patch link %s: %w", id, err)
	}
	return out, nil
}

// UpdateLinkMeta stamps the audit fields of a link instance.
func (s *Store) UpdateLinkMeta(ctx context.Context, id, updatedBy string) (*ir.LinkInstance, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE link_instances SET updated_by = ?, updated_at = ? WHERE id = ?
	`, updatedBy, s.timestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("update link meta %s: %w", id, err)
	}
	if err := expectRow(res, "link", id); err != nil {
		return nil, err
	}
	return s.GetLink(ctx, id)
}

// DeleteLink removes a link instance.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM link_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete link %s: %w", id, err)
	}
	return expectRow(res, "link", id)
}

func getLink(ctx context.Context, q queryer, id string) (*ir.LinkInstance, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+querysql.LinkColumns+` FROM link_instances WHERE id = ?
	`, id)
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("link %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get link %s: %w", id, err)
	}
	return link, nil
}

func (s *Store) queryLinks(ctx context.Context, sqlText string, args ...any) ([]*ir.LinkInstance, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	out := []*ir.LinkInstance{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return out, nil
}

func scanLink(row scanner) (*ir.LinkInstance, error) {
	var link ir.LinkInstance
	var data string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&link.ID,
		&link.LinkTypeID,
		&link.DocumentIDs[0],
		&link.DocumentIDs[1],
		&data,
		&link.CreatedBy,
		&link.UpdatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	obj, err := unmarshalData(data)
	if err != nil {
		return nil, fmt.Errorf("link %s: %w", link.ID, err)
	}
	link.Data = obj
	link.CreatedAt = fromMillis(createdAt)
	link.UpdatedAt = fromMillis(updatedAt)
	return &link, nil
}
