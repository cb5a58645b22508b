package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"messagely/internal/config"
	"messagely/internal/models"
	"messagely/internal/storage"
	"messagely/internal/storage/postgres/migrations"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const (
	pgCodeUniqueViolation     = "23505"
	pgCodeForeignKeyViolation = "23503"
)

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	if err := runMigrations(ctx, dsn); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

// runMigrations applies the embedded schema through the stdlib driver,
// which is what goose expects.
func runMigrations(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

func (r *PostgresRepo) SaveUser(ctx context.Context, user models.User) (models.Profile, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (username, password_hash, first_name, last_name, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING username, first_name, last_name, phone, joined_at, last_login_at;
	`

	var p models.Profile

	err := r.pool.QueryRow(ctx, query,
		user.Username,
		string(user.PassHash),
		user.FirstName,
		user.LastName,
		user.Phone,
	).Scan(
		&p.Username,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.JoinedAt,
		&p.LastLoginAt,
	)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgCodeUniqueViolation {
			return models.Profile{}, storage.ErrUserExists
		}

		return models.Profile{}, storage.Unavailable(op, err)
	}

	return p, nil
}

func (r *PostgresRepo) User(ctx context.Context, username string) (models.User, error) {
	const op = "storage.postgres.User"

	query := `
		SELECT username, password_hash, first_name, last_name, phone, joined_at, last_login_at
		FROM users
		WHERE username = $1;
	`

	row := r.pool.QueryRow(ctx, query, username)

	var u models.User
	err := row.Scan(
		&u.Username,
		&u.PassHash,
		&u.FirstName,
		&u.LastName,
		&u.Phone,
		&u.JoinedAt,
		&u.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, storage.Unavailable(op, err)
	}

	return u, nil
}

func (r *PostgresRepo) Profile(ctx context.Context, username string) (models.Profile, error) {
	const op = "storage.postgres.Profile"

	query := `
		SELECT username, first_name, last_name, phone, joined_at, last_login_at
		FROM users
		WHERE username = $1;
	`

	var p models.Profile

	err := r.pool.QueryRow(ctx, query, username).Scan(
		&p.Username,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
		&p.JoinedAt,
		&p.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, storage.ErrUserNotFound
		}

		return models.Profile{}, storage.Unavailable(op, err)
	}

	return p, nil
}

func (r *PostgresRepo) TouchLogin(ctx context.Context, username string) error {
	const op = "storage.postgres.TouchLogin"

	query := `UPDATE users SET last_login_at = now() WHERE username = $1`

	tag, err := r.pool.Exec(ctx, query, username)
	if err != nil {
		return storage.Unavailable(op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrUserNotFound
	}

	return nil
}

func (r *PostgresRepo) AllUsers(ctx context.Context) ([]models.UserSummary, error) {
	const op = "storage.postgres.AllUsers"

	query := `SELECT username, first_name, last_name FROM users;`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storage.Unavailable(op, err)
	}
	defer rows.Close()

	users := []models.UserSummary{}

	for rows.Next() {
		var u models.UserSummary

		if err := rows.Scan(&u.Username, &u.FirstName, &u.LastName); err != nil {
			return nil, storage.Unavailable(op, err)
		}

		users = append(users, u)
	}
	if rows.Err() != nil {
		return nil, storage.Unavailable(op, rows.Err())
	}

	return users, nil
}

// MessagesSentBy returns every message sent by username, joined with the
// recipient's summary. No messages is an empty slice, not an error.
func (r *PostgresRepo) MessagesSentBy(ctx context.Context, username string) ([]models.SentMessage, error) {
	const op = "storage.postgres.MessagesSentBy"

	query := `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       u.username, u.first_name, u.last_name, u.phone
		FROM messages AS m
		JOIN users AS u ON u.username = m.to_username
		WHERE m.from_username = $1
		ORDER BY m.sent_at;
	`

	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, storage.Unavailable(op, err)
	}
	defer rows.Close()

	msgs := []models.SentMessage{}

	for rows.Next() {
		var m models.SentMessage

		err := rows.Scan(
			&m.ID,
			&m.Body,
			&m.SentAt,
			&m.ReadAt,
			&m.ToUser.Username,
			&m.ToUser.FirstName,
			&m.ToUser.LastName,
			&m.ToUser.Phone,
		)
		if err != nil {
			return nil, storage.Unavailable(op, err)
		}

		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, storage.Unavailable(op, rows.Err())
	}

	return msgs, nil
}

// MessagesReceivedBy mirrors MessagesSentBy for the inbound direction.
func (r *PostgresRepo) MessagesReceivedBy(ctx context.Context, username string) ([]models.ReceivedMessage, error) {
	const op = "storage.postgres.MessagesReceivedBy"

	query := `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       u.username, u.first_name, u.last_name, u.phone
		FROM messages AS m
		JOIN users AS u ON u.username = m.from_username
		WHERE m.to_username = $1
		ORDER BY m.sent_at;
	`

	rows, err := r.pool.Query(ctx, query, username)
	if err != nil {
		return nil, storage.Unavailable(op, err)
	}
	defer rows.Close()

	msgs := []models.ReceivedMessage{}

	for rows.Next() {
		var m models.ReceivedMessage

		err := rows.Scan(
			&m.ID,
			&m.Body,
			&m.SentAt,
			&m.ReadAt,
			&m.FromUser.Username,
			&m.FromUser.FirstName,
			&m.FromUser.LastName,
			&m.FromUser.Phone,
		)
		if err != nil {
			return nil, storage.Unavailable(op, err)
		}

		msgs = append(msgs, m)
	}
	if rows.Err() != nil {
		return nil, storage.Unavailable(op, rows.Err())
	}

	return msgs, nil
}

func (r *PostgresRepo) MessageByID(ctx context.Context, id int64) (models.MessageDetail, error) {
	const op = "storage.postgres.MessageByID"

	query := `
		SELECT m.id, m.body, m.sent_at, m.read_at,
		       uf.username, uf.first_name, uf.last_name, uf.phone,
		       ut.username, ut.first_name, ut.last_name, ut.phone
		FROM messages AS m
		JOIN users AS uf ON uf.username = m.from_username
		JOIN users AS ut ON ut.username = m.to_username
		WHERE m.id = $1;
	`

	var m models.MessageDetail

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&m.ID,
		&m.Body,
		&m.SentAt,
		&m.ReadAt,
		&m.FromUser.Username,
		&m.FromUser.FirstName,
		&m.FromUser.LastName,
		&m.FromUser.Phone,
		&m.ToUser.Username,
		&m.ToUser.FirstName,
		&m.ToUser.LastName,
		&m.ToUser.Phone,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.MessageDetail{}, storage.ErrMessageNotFound
		}

		return models.MessageDetail{}, storage.Unavailable(op, err)
	}

	return m, nil
}

func (r *PostgresRepo) SaveMessage(ctx context.Context, from, to, body string) (models.Message, error) {
	const op = "storage.postgres.SaveMessage"

	query := `
		INSERT INTO messages (from_username, to_username, body)
		VALUES ($1, $2, $3)
		RETURNING id, from_username, to_username, body, sent_at, read_at;
	`

	var m models.Message

	err := r.pool.QueryRow(ctx, query, from, to, body).Scan(
		&m.ID,
		&m.FromUsername,
		&m.ToUsername,
		&m.Body,
		&m.SentAt,
		&m.ReadAt,
	)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == pgCodeForeignKeyViolation {
			return models.Message{}, storage.ErrUserNotFound
		}

		return models.Message{}, storage.Unavailable(op, err)
	}

	return m, nil
}

// MarkMessageRead sets read_at for a message addressed to recipient. The
// null-check lives inside the UPDATE so concurrent calls cannot race: the
// first write wins and every later call sees the same timestamp.
func (r *PostgresRepo) MarkMessageRead(ctx context.Context, id int64, recipient string) error {
	const op = "storage.postgres.MarkMessageRead"

	query := `
		UPDATE messages
		SET read_at = COALESCE(read_at, now())
		WHERE id = $1 AND to_username = $2;
	`

	tag, err := r.pool.Exec(ctx, query, id, recipient)
	if err != nil {
		return storage.Unavailable(op, err)
	}

	if tag.RowsAffected() == 0 {
		return storage.ErrMessageNotFound
	}

	return nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
