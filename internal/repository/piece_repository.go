package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/ensemble-api/internal/models"
)

// PieceRepository handles persistence of pieces and their parts.
type PieceRepository struct {
	db *sqlx.DB
}

// NewPieceRepository constructs the repository.
func NewPieceRepository(db *sqlx.DB) *PieceRepository {
	return &PieceRepository{db: db}
}

// FindByID returns a piece by its ID.
func (r *PieceRepository) FindByID(ctx context.Context, id string) (*models.Piece, error) {
	const query = `SELECT id, slug, name, created_at FROM pieces WHERE id = $1`
	var piece models.Piece
	if err := r.db.GetContext(ctx, &piece, query, id); err != nil {
		return nil, err
	}
	return &piece, nil
}

// FindPart returns the part of a piece for the given part type.
func (r *PieceRepository) FindPart(ctx context.Context, pieceID, partType string) (*models.Part, error) {
	const query = `SELECT id, piece_id, part_type, name FROM parts WHERE piece_id = $1 AND part_type = $2`
	var part models.Part
	if err := r.db.GetContext(ctx, &part, query, pieceID, partType); err != nil {
		return nil, err
	}
	return &part, nil
}

// ListParts returns all parts of a piece.
func (r *PieceRepository) ListParts(ctx context.Context, pieceID string) ([]models.Part, error) {
	const query = `SELECT id, piece_id, part_type, name FROM parts WHERE piece_id = $1 ORDER BY part_type`
	var parts []models.Part
	if err := r.db.SelectContext(ctx, &parts, query, pieceID); err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	return parts, nil
}
