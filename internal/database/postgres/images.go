package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/kozaktomas/face-search/internal/database"
	"github.com/lib/pq"
)

var imageColumns = []string{"id", "filename", "path", "thumbnail_path", "face_count", "created_at"}

// ImageRepository provides PostgreSQL-backed image records.
type ImageRepository struct {
	pool *Pool
}

// NewImageRepository creates a new PostgreSQL image repository.
func NewImageRepository(pool *Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Create inserts a new image with face_count 0.
func (r *ImageRepository) Create(ctx context.Context, img *database.Image) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO images (filename, path, thumbnail_path, face_count)
		VALUES ($1, $2, $3, 0)
		RETURNING id, created_at
	`, img.Filename, img.Path, img.ThumbnailPath).Scan(&img.ID, &img.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	img.FaceCount = 0
	return nil
}

// Delete removes an image record. Stored faces are left to the caller.
func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete image %d: %w", id, err)
	}
	return nil
}

// Get retrieves a single image.
func (r *ImageRepository) Get(ctx context.Context, id int64) (*database.Image, error) {
	query, args, err := psql.Select(imageColumns...).From("images").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	var img database.Image
	err = r.pool.QueryRow(ctx, query, args...).Scan(
		&img.ID, &img.Filename, &img.Path, &img.ThumbnailPath, &img.FaceCount, &img.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image %d: %w", id, err)
	}
	return &img, nil
}

// GetByIDs fetches all requested images in one query.
func (r *ImageRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]database.Image, error) {
	result := make(map[int64]database.Image, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := `
		SELECT id, filename, path, thumbnail_path, face_count, created_at
		FROM images
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query images by ids: %w", err)
	}
	defer rows.Close()

	images, err := scanImages(rows)
	if err != nil {
		return nil, err
	}
	for _, img := range images {
		result[img.ID] = img
	}
	return result, nil
}

// List returns a page of images ordered by id.
func (r *ImageRepository) List(ctx context.Context, skip, limit int) ([]database.Image, error) {
	b := psql.Select(imageColumns...).From("images").OrderBy("id ASC").
		Offset(uint64(max(skip, 0))).Limit(uint64(max(limit, 0)))

	rows, err := r.pool.QueryBuilder(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()

	return scanImages(rows)
}

// Recent returns the n newest images.
func (r *ImageRepository) Recent(ctx context.Context, n int) ([]database.Image, error) {
	b := psql.Select(imageColumns...).From("images").OrderBy("created_at DESC", "id DESC").Limit(uint64(max(n, 0)))

	rows, err := r.pool.QueryBuilder(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("recent images: %w", err)
	}
	defer rows.Close()

	return scanImages(rows)
}

// Count returns the total number of images.
func (r *ImageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM images").Scan(&count); err != nil {
		return 0, fmt.Errorf("count images: %w", err)
	}
	return count, nil
}

// Stats returns image and face totals.
func (r *ImageRepository) Stats(ctx context.Context) (*database.Stats, error) {
	var s database.Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM faces),
			(SELECT COUNT(*) FROM images WHERE face_count > 0)
	`).Scan(&s.TotalImages, &s.TotalFaces, &s.ImagesWithFaces)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &s, nil
}

func scanImages(rows *sql.Rows) ([]database.Image, error) {
	var images []database.Image
	for rows.Next() {
		var img database.Image
		if err := rows.Scan(&img.ID, &img.Filename, &img.Path, &img.ThumbnailPath, &img.FaceCount, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}
