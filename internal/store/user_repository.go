package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// PostgresUserRepository stores user status records.
type PostgresUserRepository struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepository(db *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

const userColumns = `id, phone, name, profile_photo, location, gender, role, status, last_step,
	provider_id, has_ongoing_job, profile::text, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u       domain.User
		role    string
		status  string
		step    string
		profile string
	)
	if err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.Name,
		&u.ProfilePhoto,
		&u.Location,
		&u.Gender,
		&role,
		&status,
		&step,
		&u.ProviderID,
		&u.HasOngoingJob,
		&profile,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.Status = domain.Lifecycle(status)
	u.LastStep = domain.Step(step)
	u.Profile = domain.Profile{}
	if profile != "" {
		if err := json.Unmarshal([]byte(profile), &u.Profile); err != nil {
			log.Printf("level=warn component=store msg=\"failed to decode user profile\" user_id=%s err=%v", u.ID, err)
			u.Profile = domain.Profile{}
		}
	}
	return &u, nil
}

// GetUser loads a status record by id.
func (r *PostgresUserRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, strings.TrimSpace(id))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// GetUserByPhone loads a status record by normalized phone number.
func (r *PostgresUserRepository) GetUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, strings.TrimSpace(phone))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// CreateUserAndEnqueueEvent inserts a new record and queues its creation
// event in the same transaction.
func (r *PostgresUserRepository) CreateUserAndEnqueueEvent(
	ctx context.Context,
	user *domain.User,
	exchange string,
	routingKey string,
	payload interface{},
) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO users (id, phone, name, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		user.ID,
		user.Phone,
		user.Name,
		string(user.Role),
		string(user.Status),
	)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			log.Printf("level=info component=store msg=\"user insert hit unique constraint\" constraint=%s", pgErr.ConstraintName)
			return nil, ErrUserExists
		}
		return nil, err
	}

	if err := appendOutbox(ctx, tx, exchange, routingKey, payload); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// TouchUser bumps updated_at for a returning identity.
func (r *PostgresUserRepository) TouchUser(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ApplyUserPatch merge-writes onboarding fields. Columns left nil keep their
// stored values and the profile document is merged key by key.
func (r *PostgresUserRepository) ApplyUserPatch(ctx context.Context, id string, patch domain.UserPatch) error {
	blob, err := json.Marshal(profileOrEmpty(patch.Profile))
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, userPatchSQL,
		id,
		patch.Name,
		patch.Location,
		patch.Gender,
		patch.ProfilePhoto,
		patch.ProviderID,
		string(patch.LastStep),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("apply onboarding patch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

const userPatchSQL = `
	UPDATE users SET
		name = COALESCE($2, name),
		location = COALESCE($3, location),
		gender = COALESCE($4, gender),
		profile_photo = COALESCE($5, profile_photo),
		provider_id = COALESCE($6, provider_id),
		last_step = CASE WHEN $7 = '' THEN last_step ELSE $7 END,
		profile = profile || $8::jsonb,
		updated_at = NOW()
	WHERE id = $1
`

// CompleteOnboarding writes the final patch, creates the record if it does
// not exist yet, moves status forward to registered and queues the event.
func (r *PostgresUserRepository) CompleteOnboarding(
	ctx context.Context,
	user *domain.User,
	patch domain.UserPatch,
	exchange string,
	routingKey string,
	payload interface{},
) (*domain.User, error) {
	blob, err := json.Marshal(profileOrEmpty(patch.Profile))
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, phone, name, role, status)
		VALUES ($1, $2, $3, $4, 'unregistered')
		ON CONFLICT (id) DO NOTHING
	`, user.ID, user.Phone, user.Name, string(domain.RoleStaff)); err != nil {
		return nil, fmt.Errorf("ensure user record: %w", err)
	}

	if _, err := tx.Exec(ctx, userPatchSQL,
		user.ID,
		patch.Name,
		patch.Location,
		patch.Gender,
		patch.ProfilePhoto,
		patch.ProviderID,
		string(patch.LastStep),
		string(blob),
	); err != nil {
		return nil, fmt.Errorf("apply onboarding patch: %w", err)
	}

	if _, err := advanceStatusTx(ctx, tx, user.ID, domain.StatusRegistered); err != nil {
		return nil, err
	}

	if err := appendOutbox(ctx, tx, exchange, routingKey, payload); err != nil {
		return nil, err
	}

	updated, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, user.ID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// AdvanceStatus moves a user's lifecycle forward. It reports false when the
// stored status is already at or past the target.
func (r *PostgresUserRepository) AdvanceStatus(ctx context.Context, id string, to domain.Lifecycle) (bool, error) {
	if !to.Valid() {
		return false, fmt.Errorf("invalid lifecycle status %q", to)
	}
	tag, err := r.db.Exec(ctx, advanceStatusSQL, id, string(to), to.Rank())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	if _, err := r.GetUser(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

const advanceStatusSQL = `
	UPDATE users
	SET status = $2, updated_at = NOW()
	WHERE id = $1
	  AND (CASE status
	        WHEN 'unregistered' THEN 1
	        WHEN 'registered' THEN 2
	        WHEN 'live' THEN 3
	        ELSE 0 END) < $3
`

func advanceStatusTx(ctx context.Context, tx pgx.Tx, id string, to domain.Lifecycle) (bool, error) {
	tag, err := tx.Exec(ctx, advanceStatusSQL, id, string(to), to.Rank())
	if err != nil {
		return false, fmt.Errorf("advance status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SyncOngoingJobs recomputes has_ongoing_job from job assignments and
// returns how many records changed.
func (r *PostgresUserRepository) SyncOngoingJobs(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE users u
		SET has_ongoing_job = sub.ongoing, updated_at = NOW()
		FROM (
			SELECT u2.id,
			       EXISTS (
			           SELECT 1 FROM jobs j
			           WHERE j.staff_id = u2.id AND j.status = 'ongoing'
			       ) AS ongoing
			FROM users u2
		) sub
		WHERE u.id = sub.id AND u.has_ongoing_job IS DISTINCT FROM sub.ongoing
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func profileOrEmpty(p domain.Profile) domain.Profile {
	if p == nil {
		return domain.Profile{}
	}
	return p
}
