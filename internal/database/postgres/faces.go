package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/pgvector/pgvector-go"
)

const faceColumns = "id, image_id, face_index, descriptor, method, dim, created_at"

// FaceRepository provides PostgreSQL-backed face descriptor storage.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// GetAll returns every stored face in id order, the scan order used by search.
func (r *FaceRepository) GetAll(ctx context.Context) ([]database.StoredFace, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+faceColumns+" FROM faces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query all faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// GetByImage retrieves all faces of one image.
func (r *FaceRepository) GetByImage(ctx context.Context, imageID int64) ([]database.StoredFace, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+faceColumns+" FROM faces WHERE image_id = $1 ORDER BY face_index", imageID)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// Sample returns up to n faces for diagnostics.
func (r *FaceRepository) Sample(ctx context.Context, n int) ([]database.StoredFace, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+faceColumns+" FROM faces ORDER BY id LIMIT $1", n)
	if err != nil {
		return nil, fmt.Errorf("query face sample: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// Count returns the total number of faces stored.
func (r *FaceRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// ReplaceFaces replaces every face of an image and updates its face_count in one transaction.
func (r *FaceRepository) ReplaceFaces(ctx context.Context, imageID int64, faces []database.StoredFace) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Row lock serializes concurrent ingestions of the same image.
	var locked int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM images WHERE id = $1 FOR UPDATE", imageID).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock image %d: %w", imageID, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM faces WHERE image_id = $1", imageID); err != nil {
		return fmt.Errorf("delete existing faces: %w", err)
	}

	if len(faces) > 0 {
		if err := insertFaces(ctx, tx, imageID, faces); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE images SET face_count = $1 WHERE id = $2", len(faces), imageID); err != nil {
		return fmt.Errorf("update face count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertFaces(ctx context.Context, tx *sql.Tx, imageID int64, faces []database.StoredFace) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO faces (image_id, face_index, descriptor, method, dim)
		VALUES ($1, $2, $3::vector, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range faces {
		face := &faces[i]
		dim := face.Dim
		if dim == 0 {
			dim = len(face.Descriptor)
		}
		if _, err := stmt.ExecContext(ctx,
			imageID,
			face.FaceIndex,
			pgvector.NewVector(face.Descriptor),
			face.Method,
			dim,
		); err != nil {
			return fmt.Errorf("insert face %d/%d: %w", imageID, face.FaceIndex, err)
		}
	}
	return nil
}

func scanFaces(rows *sql.Rows) ([]database.StoredFace, error) {
	var faces []database.StoredFace
	for rows.Next() {
		var face database.StoredFace
		var vec pgvector.Vector
		if err := rows.Scan(
			&face.ID, &face.ImageID, &face.FaceIndex, &vec, &face.Method, &face.Dim, &face.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		face.Descriptor = vec.Slice()
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}
