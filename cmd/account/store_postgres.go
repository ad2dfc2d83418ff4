package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Directory over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; Close does not close it.
// - Schema/table identifiers are quoted via pgx.Identifier.
// - SwapRefreshTokenDigest is a single conditional UPDATE; no row lock is held across calls.
// - Username and email are stored already normalized and are unique by constraint.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "vidtube").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("account: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("account: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("account: nil pool")
	}
	return st, nil
}

// DefaultSchema is the schema created by the embedded migrations.
const DefaultSchema = "vidtube"

const accountColumns = `id, username, email, full_name, avatar_url, cover_image_url,
	password_hash, refresh_token_digest, created_at, updated_at`

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close is a no-op; the pool belongs to the caller.
func (s *PostgresStore) Close(_ context.Context) error { return nil }

func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Account, error) {
	const op = "account.Create"

	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	in, err := normalizeCreate(op, in)
	if err != nil {
		return Account{}, err
	}
	id, err := NewID(in.Now)
	if err != nil {
		return Account{}, err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table("accounts")+` (
		     id, username, email, full_name, avatar_url, cover_image_url,
		     password_hash, refresh_token_digest, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, '', $8, $8)`,
		id, in.Username, in.Email, in.FullName, in.AvatarURL, in.CoverImageURL, in.PasswordHash, in.Now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}

	return Account{
		ID:            id,
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		AvatarURL:     in.AvatarURL,
		CoverImageURL: in.CoverImageURL,
		PasswordHash:  in.PasswordHash,
		CreatedAt:     in.Now,
		UpdatedAt:     in.Now,
	}, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Account, error) {
	return s.getOne(ctx, "account.GetByID", "id", strings.TrimSpace(id))
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Account, error) {
	key := NormalizeUsername(username)
	if key == "" {
		return Account{}, invalid("account.GetByUsername", "empty key")
	}
	return s.getOne(ctx, "account.GetByUsername", "username", key)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	key := NormalizeEmail(email)
	if key == "" {
		return Account{}, invalid("account.GetByEmail", "empty key")
	}
	return s.getOne(ctx, "account.GetByEmail", "email", key)
}

// getOne loads an account by a fixed column name; column is never user input.
func (s *PostgresStore) getOne(ctx context.Context, op, column, value string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM `+s.table("accounts")+` WHERE `+column+` = $1`, value)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		return Account{}, err
	}

	hist, err := s.historyIDs(ctx, a.ID)
	if err != nil {
		return Account{}, err
	}
	a.WatchHistory = hist
	return a, nil
}

func (s *PostgresStore) historyIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT video_id FROM `+s.table("watch_history")+` WHERE account_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresStore) UpdateDetails(ctx context.Context, id string, in DetailsInput) (Account, error) {
	const op = "account.UpdateDetails"

	fullName := strings.TrimSpace(in.FullName)
	email := NormalizeEmail(in.Email)
	if fullName == "" || email == "" {
		return Account{}, invalid(op, "full name and email are required")
	}
	return s.updateReturning(ctx, op, id,
		`full_name = $2, email = $3, updated_at = $4`, fullName, email, nowOr(in.Now))
}

func (s *PostgresStore) UpdateAvatar(ctx context.Context, id, url string, now time.Time) (Account, error) {
	return s.updateReturning(ctx, "account.UpdateAvatar", id,
		`avatar_url = $2, updated_at = $3`, url, nowOr(now))
}

func (s *PostgresStore) UpdateCoverImage(ctx context.Context, id, url string, now time.Time) (Account, error) {
	return s.updateReturning(ctx, "account.UpdateCoverImage", id,
		`cover_image_url = $2, updated_at = $3`, url, nowOr(now))
}

func (s *PostgresStore) updateReturning(ctx context.Context, op, id, set string, args ...any) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table("accounts")+` SET `+set+` WHERE id = $1 RETURNING `+accountColumns,
		append([]any{strings.TrimSpace(id)}, args...)...)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, NotFoundError{Op: op, Resource: "account"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Account{}, ConflictError{Op: op, Field: field}
		}
		return Account{}, err
	}
	hist, err := s.historyIDs(ctx, a.ID)
	if err != nil {
		return Account{}, err
	}
	a.WatchHistory = hist
	return a, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "account.UpdatePasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	return s.exec(ctx, op, id, `password_hash = $2, updated_at = $3`, hash, nowOr(now))
}

func (s *PostgresStore) SetRefreshTokenDigest(ctx context.Context, id, digest string, now time.Time) error {
	return s.exec(ctx, "account.SetRefreshTokenDigest", id,
		`refresh_token_digest = $2, updated_at = $3`, digest, nowOr(now))
}

func (s *PostgresStore) exec(ctx context.Context, op, id, set string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("accounts")+` SET `+set+` WHERE id = $1`,
		append([]any{strings.TrimSpace(id)}, args...)...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "account"}
	}
	return nil
}

func (s *PostgresStore) SwapRefreshTokenDigest(ctx context.Context, id, expected, next string, now time.Time) error {
	const op = "account.SwapRefreshTokenDigest"

	if err := ctx.Err(); err != nil {
		return err
	}
	if expected == "" || next == "" {
		return staleRefresh(op)
	}

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("accounts")+`
		    SET refresh_token_digest = $3, updated_at = $4
		  WHERE id = $1 AND refresh_token_digest = $2 AND refresh_token_digest <> ''`,
		strings.TrimSpace(id), expected, next, nowOr(now))
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return staleRefresh(op)
	}
	return nil
}

func (s *PostgresStore) ChannelProfile(ctx context.Context, username, viewerID string) (ChannelProfile, error) {
	const op = "account.ChannelProfile"

	if err := ctx.Err(); err != nil {
		return ChannelProfile{}, err
	}
	key := NormalizeUsername(username)
	if key == "" {
		return ChannelProfile{}, invalid(op, "username is required")
	}

	accounts := s.table("accounts")
	subs := s.table("subscriptions")

	var p ChannelProfile
	err := s.pool.QueryRow(ctx,
		`SELECT a.id, a.username, a.email, a.full_name, a.avatar_url, a.cover_image_url,
		        (SELECT count(*) FROM `+subs+` s WHERE s.channel_id = a.id),
		        (SELECT count(*) FROM `+subs+` s WHERE s.subscriber_id = a.id),
		        EXISTS (SELECT 1 FROM `+subs+` s WHERE s.channel_id = a.id AND s.subscriber_id = $2)
		   FROM `+accounts+` a
		  WHERE a.username = $1`,
		key, viewerID,
	).Scan(&p.ID, &p.Username, &p.Email, &p.FullName, &p.AvatarURL, &p.CoverImageURL,
		&p.SubscribersCount, &p.ChannelsSubscribedToCount, &p.IsSubscribed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ChannelProfile{}, NotFoundError{Op: op, Resource: "channel"}
		}
		return ChannelProfile{}, err
	}
	return p, nil
}

func (s *PostgresStore) WatchHistory(ctx context.Context, id string) ([]WatchedVideo, error) {
	const op = "account.WatchHistory"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table("accounts")+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, NotFoundError{Op: op, Resource: "account"}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.owner_id, v.title, v.description, v.thumbnail_url, v.video_url,
		        v.duration_seconds, v.views, v.created_at,
		        o.id, o.username, o.full_name, o.avatar_url
		   FROM `+s.table("watch_history")+` h
		   JOIN `+s.table("videos")+` v ON v.id = h.video_id
		   JOIN `+s.table("accounts")+` o ON o.id = v.owner_id
		  WHERE h.account_id = $1
		  ORDER BY h.seq`, id)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (WatchedVideo, error) {
		var w WatchedVideo
		err := row.Scan(&w.Video.ID, &w.Video.OwnerID, &w.Video.Title, &w.Video.Description,
			&w.Video.ThumbnailURL, &w.Video.VideoURL, &w.Video.DurationSeconds, &w.Video.Views,
			&w.Video.CreatedAt, &w.Owner.ID, &w.Owner.Username, &w.Owner.FullName, &w.Owner.AvatarURL)
		return w, err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []WatchedVideo{}
	}
	return out, nil
}

func (s *PostgresStore) Subscribe(ctx context.Context, subscriberID, channelID string, now time.Time) error {
	const op = "account.Subscribe"

	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriberID == "" || channelID == "" {
		return invalid(op, "subscriber and channel are required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("subscriptions")+` (subscriber_id, channel_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subscriber_id, channel_id) DO NOTHING`,
		subscriberID, channelID, nowOr(now))
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: "account"}
		}
		return err
	}
	return nil
}

func (s *PostgresStore) CreateVideo(ctx context.Context, v Video) (Video, error) {
	const op = "account.CreateVideo"

	if err := ctx.Err(); err != nil {
		return Video{}, err
	}
	v, err := normalizeVideo(op, v)
	if err != nil {
		return Video{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+s.table("videos")+` (
		     id, owner_id, title, description, thumbnail_url, video_url,
		     duration_seconds, views, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		v.ID, v.OwnerID, v.Title, v.Description, v.ThumbnailURL, v.VideoURL,
		v.DurationSeconds, v.Views, v.CreatedAt)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return Video{}, NotFoundError{Op: op, Resource: "owner"}
		}
		if _, ok := pgClassifyUniqueViolation(err); ok {
			return Video{}, ConflictError{Op: op, Field: "id"}
		}
		return Video{}, err
	}
	return v, nil
}

func (s *PostgresStore) AppendWatchHistory(ctx context.Context, id, videoID string, now time.Time) error {
	const op = "account.AppendWatchHistory"

	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("watch_history")+` (account_id, video_id, watched_at)
		 VALUES ($1, $2, $3)`,
		strings.TrimSpace(id), videoID, nowOr(now))
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return NotFoundError{Op: op, Resource: pgForeignKeyResource(err)}
		}
		return err
	}
	return nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.FullName, &a.AvatarURL, &a.CoverImageURL,
		&a.PasswordHash, &a.RefreshTokenDigest, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgForeignKeyResource(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "video") {
		return "video"
	}
	return "account"
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_accounts_username":
		return "username", true
	case "uq_accounts_email":
		return "email", true
	}
	switch {
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "", true
	}
}
