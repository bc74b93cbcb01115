package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/db/interfaces"
)

const postColumns = `id, author_id, title, slug, content, excerpt, status, visibility, minimum_tier,
	scheduled_at, published_at, series_id, series_order, word_count, reading_time, view_count,
	created_at, updated_at, deleted_at`

// sortColumns whitelists the columns a listing may order by.
var sortColumns = map[interfaces.SortField]string{
	interfaces.SortCreatedAt:   "created_at",
	interfaces.SortUpdatedAt:   "updated_at",
	interfaces.SortPublishedAt: "published_at",
	interfaces.SortTitle:       "title",
	interfaces.SortViewCount:   "view_count",
	interfaces.SortSeriesOrder: "series_order",
}

type postRepository struct {
	conn querier
}

func (r *postRepository) queryPosts(ctx context.Context, op, sql string, args ...any) ([]*entities.Post, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	posts, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[entities.Post])
	if err != nil {
		return nil, translate(op, err)
	}
	return posts, nil
}

func (r *postRepository) queryPost(ctx context.Context, op, sql string, args ...any) (*entities.Post, error) {
	rows, err := r.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(op, err)
	}
	post, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByName[entities.Post])
	if err != nil {
		return nil, translate(op, err)
	}
	return post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*entities.Post, error) {
	return r.queryPost(ctx, "get post",
		`SELECT `+postColumns+` FROM posts WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *postRepository) GetBySlug(ctx context.Context, slug string) (*entities.Post, error) {
	return r.queryPost(ctx, "get post by slug",
		`SELECT `+postColumns+` FROM posts WHERE slug = $1 AND deleted_at IS NULL`, slug)
}

func (r *postRepository) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	var taken bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1 AND id <> $2 AND deleted_at IS NULL)`,
		slug, excludeID,
	).Scan(&taken)
	return taken, translate("check slug", err)
}

func (r *postRepository) Create(ctx context.Context, p *entities.Post) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		p.ID, p.AuthorID, p.Title, p.Slug, p.Content, p.Excerpt, p.Status, p.Visibility, p.MinimumTier,
		p.ScheduledAt, p.PublishedAt, p.SeriesID, p.SeriesOrder, p.WordCount, p.ReadingTime, p.ViewCount,
		p.CreatedAt, p.UpdatedAt, p.DeletedAt,
	)
	return translate("create post", err)
}

func (r *postRepository) Update(ctx context.Context, p *entities.Post) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE posts SET
			author_id = $2, title = $3, slug = $4, content = $5, excerpt = $6, status = $7,
			visibility = $8, minimum_tier = $9, scheduled_at = $10, published_at = $11,
			series_id = $12, series_order = $13, word_count = $14, reading_time = $15,
			updated_at = $16
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.AuthorID, p.Title, p.Slug, p.Content, p.Excerpt, p.Status,
		p.Visibility, p.MinimumTier, p.ScheduledAt, p.PublishedAt,
		p.SeriesID, p.SeriesOrder, p.WordCount, p.ReadingTime,
		p.UpdatedAt,
	)
	if err != nil {
		return translate("update post", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *postRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE posts SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return translate("delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *postRepository) List(ctx context.Context, q *interfaces.PostQuery) ([]*entities.Post, error) {
	column, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, fmt.Errorf("%w: sort field %q", interfaces.ErrInvalidQuery, q.SortBy)
	}
	direction := "DESC"
	comparator := "<"
	if q.Order == interfaces.SortAsc {
		direction = "ASC"
		comparator = ">"
	}

	var qb queryBuilder
	qb.Add(`SELECT ` + postColumns + ` FROM posts WHERE deleted_at IS NULL`)

	f := q.Filter
	if f.Status != nil {
		qb.Add(`AND status = $?`, *f.Status)
	}
	if f.Visibility != nil {
		qb.Add(`AND visibility = $?`, *f.Visibility)
	}
	if f.AuthorID != "" {
		qb.Add(`AND author_id = $?`, f.AuthorID)
	}
	if f.SeriesID != "" {
		qb.Add(`AND series_id = $?`, f.SeriesID)
	}
	if f.Search != "" {
		qb.Add(`AND title ILIKE $?`, "%"+escapeLike(f.Search)+"%")
	}
	if q.SortBy.Nullable() {
		qb.Add(`AND ` + column + ` IS NOT NULL`)
	}
	if after := q.After.Coerce(q.SortBy.Kind()); !after.IsNull() {
		qb.Add(`AND `+column+` `+comparator+` $?`, after.Any())
	}

	qb.Add(`ORDER BY ` + column + ` ` + direction + `, id ` + direction)
	if q.Limit > 0 {
		qb.Add(`LIMIT $?`, q.Limit)
	}

	return r.queryPosts(ctx, "list posts", qb.String(), qb.Args()...)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *postRepository) DueScheduled(ctx context.Context, now time.Time, limit int) ([]*entities.Post, error) {
	var qb queryBuilder
	qb.Add(`SELECT `+postColumns+` FROM posts
		WHERE status = 'scheduled' AND scheduled_at <= $? AND deleted_at IS NULL
		ORDER BY scheduled_at ASC`, now)
	if limit > 0 {
		qb.Add(`LIMIT $?`, limit)
	}
	return r.queryPosts(ctx, "due scheduled posts", qb.String(), qb.Args()...)
}

func (r *postRepository) PromoteScheduled(ctx context.Context, id string, now time.Time) (*entities.Post, error) {
	return r.queryPost(ctx, "promote post", `
		UPDATE posts SET
			status = 'published',
			published_at = COALESCE(published_at, $2),
			updated_at = $2
		WHERE id = $1
			AND status = 'scheduled'
			AND scheduled_at <= $2
			AND deleted_at IS NULL
		RETURNING `+postColumns, id, now)
}

func (r *postRepository) IncrementViewCount(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE posts SET view_count = view_count + 1 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return translate("increment views", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (r *postRepository) SetSeriesOrder(ctx context.Context, id, seriesID string, order int, at time.Time) error {
	tag, err := r.conn.Exec(ctx,
		`UPDATE posts SET series_id = $2, series_order = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`,
		id, seriesID, order, at)
	if err != nil {
		return translate("set series order", err)
	}
	if tag.RowsAffected() == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}
