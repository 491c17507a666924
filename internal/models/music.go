package models

import "time"

// Piece is a musical work decomposed into parts.
type Piece struct {
	ID        string    `db:"id" json:"id"`
	Slug      string    `db:"slug" json:"slug"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Part is one playable voice of a piece. One part exists per
// (piece, part_type) combination.
type Part struct {
	ID       string `db:"id" json:"id"`
	PieceID  string `db:"piece_id" json:"piece_id"`
	PartType string `db:"part_type" json:"part_type"`
	Name     string `db:"name" json:"name"`
}
