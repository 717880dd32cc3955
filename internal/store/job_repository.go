package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// PostgresJobRepository reads job postings.
type PostgresJobRepository struct {
	db *pgxpool.Pool
}

func NewPostgresJobRepository(db *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

const jobColumns = `id, staff_id, status, customer_name, customer_age, description, requirements::text,
	district, sub_district, pincode, job_type, start_date, end_date, created_at`

func scanJob(row rowScanner) (*domain.JobPosting, error) {
	var (
		j            domain.JobPosting
		status       string
		requirements string
		start, end   *time.Time
	)
	if err := row.Scan(
		&j.ID,
		&j.StaffID,
		&status,
		&j.CustomerName,
		&j.CustomerAge,
		&j.Description,
		&requirements,
		&j.District,
		&j.SubDistrict,
		&j.Pincode,
		&j.JobType,
		&start,
		&end,
		&j.CreatedAt,
	); err != nil {
		return nil, err
	}
	j.Status = domain.JobStatus(status)
	if requirements != "" {
		// Malformed requirement lists fall back to empty via Normalize.
		_ = json.Unmarshal([]byte(requirements), &j.Requirements)
	}
	if start != nil {
		j.StartDate = *start
	}
	if end != nil {
		j.EndDate = *end
	}
	return &j, nil
}

// ListUnassignedJobs returns postings nobody has been assigned to, newest first.
func (r *PostgresJobRepository) ListUnassignedJobs(ctx context.Context) ([]domain.JobPosting, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE staff_id = $1
		ORDER BY created_at DESC
	`, domain.UnassignedStaffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []domain.JobPosting{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// GetJob loads a single posting.
func (r *PostgresJobRepository) GetJob(ctx context.Context, id string) (*domain.JobPosting, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// InsertJobs writes postings in one batch.
func (r *PostgresJobRepository) InsertJobs(ctx context.Context, jobs []domain.JobPosting) error {
	if len(jobs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, j := range jobs {
		reqs, err := json.Marshal(j.Requirements)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO jobs (id, staff_id, status, customer_name, customer_age, description, requirements,
				district, sub_district, pincode, job_type, start_date, end_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13)
		`, j.ID, j.StaffID, string(j.Status), j.CustomerName, j.CustomerAge, j.Description, string(reqs),
			j.District, j.SubDistrict, j.Pincode, j.JobType, j.StartDate, j.EndDate)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range jobs {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
