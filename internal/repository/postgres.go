package repository

import (
	"context"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/locolive/socialgraph/internal/domain"
)

//go:embed schema.sql
var schema string

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// userColumns projects a users row aliased as u, with its relationship sets
// restricted to active peers.
const userColumns = `
	u.id, u.email, u.full_name, u.username, u.profile_picture, u.cover_photo, u.bio, u.location,
	ARRAY(
		SELECT f.follower_id FROM follows f JOIN users p ON p.id = f.follower_id AND p.is_active
		WHERE f.followee_id = u.id ORDER BY f.created_at
	),
	ARRAY(
		SELECT f.followee_id FROM follows f JOIN users p ON p.id = f.followee_id AND p.is_active
		WHERE f.follower_id = u.id ORDER BY f.created_at
	),
	ARRAY(
		SELECT c.peer_id FROM connections c JOIN users p ON p.id = c.peer_id AND p.is_active
		WHERE c.user_id = u.id ORDER BY c.created_at
	),
	u.provisional, u.is_active, u.created_at, u.updated_at`

const summaryColumns = `u.id, u.username, u.full_name, u.profile_picture, u.bio, u.location`

const requestColumns = `id, from_user_id, to_user_id, status, created_at, accepted_at, event_published_at`

// PostgresRepository implements the domain repositories using PostgreSQL
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates missing tables and indexes
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateUser creates a new user
func (r *PostgresRepository) CreateUser(ctx context.Context, params domain.CreateUserParams) (*domain.User, error) {
	query := `
		WITH u AS (
			INSERT INTO users (id, email, full_name, username, profile_picture, provisional)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM u
	`
	row := r.db.QueryRow(ctx, query,
		params.ID,
		params.Email,
		params.FullName,
		params.Username,
		params.ProfilePicture,
		params.Provisional,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, userWriteError(err)
	}
	return user, nil
}

// GetUserByID retrieves an active user by ID
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1 AND u.is_active = TRUE`
	row := r.db.QueryRow(ctx, query, id)
	return scanUser(row)
}

// UserExists checks if an active user exists by ID
func (r *PostgresRepository) UserExists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND is_active = TRUE)`
	var exists bool
	err := r.db.QueryRow(ctx, query, id).Scan(&exists)
	return exists, err
}

// UsernameExists checks if username is held by any user other than excludeID
func (r *PostgresRepository) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND id <> $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, username, excludeID).Scan(&exists)
	return exists, err
}

// UpdateUser applies the non-nil fields of update
func (r *PostgresRepository) UpdateUser(ctx context.Context, id string, update domain.UserUpdate) (*domain.User, error) {
	query := `
		WITH u AS (
			UPDATE users SET
				email = COALESCE($2, email),
				full_name = COALESCE($3, full_name),
				username = COALESCE($4, username),
				profile_picture = COALESCE($5, profile_picture),
				cover_photo = COALESCE($6, cover_photo),
				bio = COALESCE($7, bio),
				location = COALESCE($8, location),
				provisional = COALESCE($9, provisional),
				updated_at = NOW()
			WHERE id = $1 AND is_active = TRUE
			RETURNING *
		)
		SELECT ` + userColumns + ` FROM u
	`
	row := r.db.QueryRow(ctx, query,
		id,
		update.Email,
		update.FullName,
		update.Username,
		update.ProfilePicture,
		update.CoverPhoto,
		update.Bio,
		update.Location,
		update.Provisional,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, userWriteError(err)
	}
	return user, nil
}

// SearchUsers returns active users whose username, email, full name or
// location contains query, ignoring case
func (r *PostgresRepository) SearchUsers(ctx context.Context, query, excludeID string) ([]*domain.User, error) {
	sql := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.is_active = TRUE AND u.id <> $1
		  AND (u.username ILIKE $2 OR u.email ILIKE $2 OR u.full_name ILIKE $2 OR u.location ILIKE $2)
		ORDER BY u.username
	`
	rows, err := r.db.Query(ctx, sql, excludeID, "%"+escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []*domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// ListPostsByUser returns a user's posts, newest first
func (r *PostgresRepository) ListPostsByUser(ctx context.Context, userID string) ([]*domain.Post, error) {
	query := `
		SELECT id, user_id, content, image_urls, post_type, created_at
		FROM posts WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []*domain.Post{}
	for rows.Next() {
		var post domain.Post
		if err := rows.Scan(&post.ID, &post.UserID, &post.Content, &post.ImageURLs, &post.PostType, &post.CreatedAt); err != nil {
			return nil, err
		}
		posts = append(posts, &post)
	}
	return posts, rows.Err()
}

// AddFollow inserts the follow edge and reports whether it was new
func (r *PostgresRepository) AddFollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	query := `
		INSERT INTO follows (follower_id, followee_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, followerID, followeeID)
	if err != nil {
		if isViolation(err, pgForeignKeyViolation) {
			return false, domain.ErrUserNotFound
		}
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RemoveFollow deletes the follow edge if present
func (r *PostgresRepository) RemoveFollow(ctx context.Context, followerID, followeeID string) error {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	_, err := r.db.Exec(ctx, query, followerID, followeeID)
	return err
}

// CountRequestsSince counts requests sent by fromUserID after since
func (r *PostgresRepository) CountRequestsSince(ctx context.Context, fromUserID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM connection_requests WHERE from_user_id = $1 AND created_at > $2`
	var count int
	err := r.db.QueryRow(ctx, query, fromUserID, since).Scan(&count)
	return count, err
}

// GetRequestByPair retrieves the request between two users in either direction
func (r *PostgresRepository) GetRequestByPair(ctx context.Context, pairKey string) (*domain.ConnectionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM connection_requests WHERE pair_key = $1`
	return scanConnectionRequest(r.db.QueryRow(ctx, query, pairKey))
}

// GetRequest retrieves the request sent by fromUserID to toUserID
func (r *PostgresRepository) GetRequest(ctx context.Context, fromUserID, toUserID string) (*domain.ConnectionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM connection_requests WHERE from_user_id = $1 AND to_user_id = $2`
	return scanConnectionRequest(r.db.QueryRow(ctx, query, fromUserID, toUserID))
}

// CreateConnectionRequest creates a pending request
func (r *PostgresRepository) CreateConnectionRequest(ctx context.Context, params domain.CreateConnectionRequestParams) (*domain.ConnectionRequest, error) {
	query := `
		INSERT INTO connection_requests (id, from_user_id, to_user_id, pair_key, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + requestColumns
	row := r.db.QueryRow(ctx, query,
		params.ID,
		params.FromUserID,
		params.ToUserID,
		domain.PairKey(params.FromUserID, params.ToUserID),
		domain.ConnectionStatusPending,
		params.CreatedAt,
	)
	req, err := scanConnectionRequest(row)
	if err != nil {
		switch {
		case isViolation(err, pgUniqueViolation):
			return nil, domain.ErrConnectionRequestExists
		case isViolation(err, pgForeignKeyViolation):
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return req, nil
}

// AcceptConnectionRequest marks the request accepted and writes both
// connection edges in one transaction
func (r *PostgresRepository) AcceptConnectionRequest(ctx context.Context, requestID uuid.UUID, acceptedAt time.Time) (*domain.ConnectionRequest, error) {
	var req *domain.ConnectionRequest
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query := `
			UPDATE connection_requests SET status = $2, accepted_at = $3
			WHERE id = $1 AND status = $4
			RETURNING ` + requestColumns
		var err error
		req, err = scanConnectionRequest(tx.QueryRow(ctx, query,
			requestID, domain.ConnectionStatusAccepted, acceptedAt, domain.ConnectionStatusPending))
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO connections (user_id, peer_id, created_at)
			VALUES ($1, $2, $3), ($2, $1, $3)
			ON CONFLICT DO NOTHING
		`, req.FromUserID, req.ToUserID, acceptedAt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// MarkRequestPublished records that the creation event went out
func (r *PostgresRepository) MarkRequestPublished(ctx context.Context, requestID uuid.UUID, at time.Time) error {
	query := `UPDATE connection_requests SET event_published_at = $2 WHERE id = $1 AND event_published_at IS NULL`
	_, err := r.db.Exec(ctx, query, requestID, at)
	return err
}

// ListUnpublishedRequests returns requests created before createdBefore
// whose event was never confirmed, oldest first
func (r *PostgresRepository) ListUnpublishedRequests(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.ConnectionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM connection_requests
		WHERE event_published_at IS NULL AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []*domain.ConnectionRequest{}
	for rows.Next() {
		req, err := scanConnectionRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ListConnections returns the user's active connections
func (r *PostgresRepository) ListConnections(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	return r.listSummaries(ctx, `
		SELECT `+summaryColumns+`
		FROM connections c JOIN users u ON u.id = c.peer_id
		WHERE c.user_id = $1 AND u.is_active = TRUE
		ORDER BY c.created_at
	`, userID)
}

// ListFollowers returns the active users following userID
func (r *PostgresRepository) ListFollowers(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	return r.listSummaries(ctx, `
		SELECT `+summaryColumns+`
		FROM follows f JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = $1 AND u.is_active = TRUE
		ORDER BY f.created_at
	`, userID)
}

// ListFollowing returns the active users userID follows
func (r *PostgresRepository) ListFollowing(ctx context.Context, userID string) ([]*domain.UserSummary, error) {
	return r.listSummaries(ctx, `
		SELECT `+summaryColumns+`
		FROM follows f JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = $1 AND u.is_active = TRUE
		ORDER BY f.created_at
	`, userID)
}

// ListPendingIncoming returns pending requests to userID with their senders.
// Requests from inactive senders are excluded by the join.
func (r *PostgresRepository) ListPendingIncoming(ctx context.Context, userID string) ([]*domain.ConnectionRequest, error) {
	query := `
		SELECT cr.id, cr.from_user_id, cr.to_user_id, cr.status, cr.created_at, cr.accepted_at, cr.event_published_at,
			` + summaryColumns + `
		FROM connection_requests cr JOIN users u ON u.id = cr.from_user_id
		WHERE cr.to_user_id = $1 AND cr.status = $2 AND u.is_active = TRUE
		ORDER BY cr.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, domain.ConnectionStatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []*domain.ConnectionRequest{}
	for rows.Next() {
		var req domain.ConnectionRequest
		var sender domain.UserSummary
		err := rows.Scan(
			&req.ID,
			&req.FromUserID,
			&req.ToUserID,
			&req.Status,
			&req.CreatedAt,
			&req.AcceptedAt,
			&req.EventPublishedAt,
			&sender.ID,
			&sender.Username,
			&sender.FullName,
			&sender.ProfilePicture,
			&sender.Bio,
			&sender.Location,
		)
		if err != nil {
			return nil, err
		}
		req.Sender = &sender
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// ClaimNotificationDelivery records a delivery for requestID, reporting
// false if one was already recorded
func (r *PostgresRepository) ClaimNotificationDelivery(ctx context.Context, requestID uuid.UUID) (bool, error) {
	query := `INSERT INTO notification_deliveries (request_id) VALUES ($1) ON CONFLICT DO NOTHING`
	tag, err := r.db.Exec(ctx, query, requestID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseNotificationDelivery removes a claim so a redelivery can retry
func (r *PostgresRepository) ReleaseNotificationDelivery(ctx context.Context, requestID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM notification_deliveries WHERE request_id = $1`, requestID)
	return err
}

// PruneNotificationDeliveries removes delivery records older than retention
func (r *PostgresRepository) PruneNotificationDeliveries(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM notification_deliveries WHERE delivered_at < $1`
	tag, err := r.db.Exec(ctx, query, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// StartCleanupWorker starts a background worker that prunes old delivery records
func (r *PostgresRepository) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = r.PruneNotificationDeliveries(ctx, retention)
			}
		}
	}()
}

func (r *PostgresRepository) listSummaries(ctx context.Context, query string, args ...any) ([]*domain.UserSummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []*domain.UserSummary{}
	for rows.Next() {
		var s domain.UserSummary
		if err := rows.Scan(&s.ID, &s.Username, &s.FullName, &s.ProfilePicture, &s.Bio, &s.Location); err != nil {
			return nil, err
		}
		summaries = append(summaries, &s)
	}
	return summaries, rows.Err()
}

// Helper functions for scanning rows

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Username,
		&user.ProfilePicture,
		&user.CoverPhoto,
		&user.Bio,
		&user.Location,
		&user.Followers,
		&user.Following,
		&user.Connections,
		&user.Provisional,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func scanConnectionRequest(row pgx.Row) (*domain.ConnectionRequest, error) {
	var req domain.ConnectionRequest
	err := row.Scan(
		&req.ID,
		&req.FromUserID,
		&req.ToUserID,
		&req.Status,
		&req.CreatedAt,
		&req.AcceptedAt,
		&req.EventPublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionRequestNotFound
		}
		return nil, err
	}
	return &req, nil
}

func userWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return domain.ErrUsernameTaken
		case "users_pkey":
			return domain.ErrUserAlreadyExists
		}
	}
	return err
}

func isViolation(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
