package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
	"github.com/roach88/automaton/internal/querysql"
)

// CreateDocument persists a new document and returns the stored copy with
// its assigned id and creation time. The argument is not modified.
func (s *Store) CreateDocument(ctx context.Context, doc *ir.Document) (*ir.Document, error) {
	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = s.ids.Generate()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = fromMillis(s.timestamp())
	}
	data, err := marshalData(stored.Data)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, collection_id, parent_id, data, created_by, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		stored.ID,
		stored.CollectionID,
		stored.ParentID,
		data,
		stored.CreatedBy,
		stored.UpdatedBy,
		toMillis(stored.CreatedAt),
		toMillis(stored.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return stored, nil
}

// GetDocument returns the document or an error wrapping ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*ir.Document, error) {
	return getDocument(ctx, s.db, id)
}

// GetDocuments returns the documents that exist among ids, ordered by id.
// Missing ids are skipped.
func (s *Store) GetDocuments(ctx context.Context, ids []string) ([]*ir.Document, error) {
	if len(ids) == 0 {
		return []*ir.Document{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryDocuments(ctx, `
		SELECT `+querysql.DocumentColumns+` FROM documents
		WHERE id IN (`+strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")+`)
		ORDER BY id ASC COLLATE BINARY
	`, args...)
}

// ChildDocuments returns the documents whose parent is parentID.
func (s *Store) ChildDocuments(ctx context.Context, parentID string) ([]*ir.Document, error) {
	return s.queryDocuments(ctx, `
		SELECT `+querysql.DocumentColumns+` FROM documents
		WHERE parent_id = ?
		ORDER BY id ASC COLLATE BINARY
	`, parentID)
}

// SearchDocuments runs a documents query.
func (s *Store) SearchDocuments(ctx context.Context, q query.Documents) ([]*ir.Document, error) {
	sqlText, params, err := querysql.NewSQLCompiler().Compile(q)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return s.queryDocuments(ctx, sqlText, params...)
}

// PatchDocumentData merges patch into the stored attribute map and returns
// the updated document. The read and the write happen in one transaction.
func (s *Store) PatchDocumentData(ctx context.Context, id string, patch ir.IRObject) (*ir.Document, error) {
	var out *ir.Document
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.Data == nil {
			doc.Data = ir.IRObject{}
		}
		for k, v := range patch {
			doc.Data[k] = v
		}
		data, err := marshalData(doc.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET data = ? WHERE id = ?`, data, id); err != nil {
			return fmt.Errorf("update document data %s: %w", id, err)
		}
		out = doc
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("patch document %s: %w", id, err)
	}
	return out, nil
}

// UpdateDocumentMeta stamps the audit fields of a document.
func (s *Store) UpdateDocumentMeta(ctx context.Context, id, updatedBy string) (*ir.Document, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE documents SET updated_by = ?, updated_at = ? WHERE id = ?
	`, updatedBy, s.timestamp(), id)
	if err != nil {
		return nil, fmt.Errorf("update document meta %s: %w", id, err)
	}
	if err := expectRow(res, "document", id); err != nil {
		return nil, err
	}
	return s.GetDocument(ctx, id)
}

// DeleteDocument removes a document. Links are not touched; callers remove
// them first.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return expectRow(res, "document", id)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDocument(ctx context.Context, q queryer, id string) (*ir.Document, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+querysql.DocumentColumns+` FROM documents WHERE id = ?
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

func (s *Store) queryDocuments(ctx context.Context, sqlText string, args ...any) ([]*ir.Document, error) {
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []*ir.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanDocument(row scanner) (*ir.Document, error) {
	var doc ir.Document
	var data string
	var createdAt, updatedAt int64
	if err := row.Scan(
		&doc.ID,
		&doc.CollectionID,
		&doc.ParentID,
		&data,
		&doc.CreatedBy,
		&doc.UpdatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	obj, err := unmarshalData(data)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	doc.Data = obj
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	return &doc, nil
}
