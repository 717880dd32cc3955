package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vishwadoshi-19/zense-staff/internal/domain"
)

// JobStore reads and seeds job postings.
type JobStore interface {
	ListUnassignedJobs(ctx context.Context) ([]domain.JobPosting, error)
	GetJob(ctx context.Context, id string) (*domain.JobPosting, error)
	InsertJobs(ctx context.Context, jobs []domain.JobPosting) error
}

// JobService serves the job browser.
type JobService struct {
	jobs   JobStore
	users  StatusLoader
	logger *slog.Logger
	now    func() time.Time
}

func NewJobService(jobs JobStore, users StatusLoader, logger *slog.Logger) *JobService {
	return &JobService{jobs: jobs, users: users, logger: logger, now: time.Now}
}

// List returns unassigned postings narrowed by facet. Only live staff may
// browse; everyone else gets ErrNotApproved and no postings at all.
func (s *JobService) List(ctx context.Context, userID, rawFacet string) ([]domain.JobPosting, error) {
	facet, ok := domain.ParseJobFacet(rawFacet)
	if !ok {
		return nil, &InputError{Field: "status", Message: fmt.Sprintf("unknown status %q", rawFacet)}
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status != domain.StatusLive {
		return nil, ErrNotApproved
	}

	postings, err := s.jobs.ListUnassignedJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	now := s.now().UTC()
	for i := range postings {
		postings[i].Normalize(now)
	}
	return domain.FilterJobs(postings, facet), nil
}

// Get returns one posting.
func (s *JobService) Get(ctx context.Context, id string) (*domain.JobPosting, error) {
	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Normalize(s.now().UTC())
	return job, nil
}

var sampleSubDistricts = []struct {
	name    string
	pincode int
}{
	{"Rohini", 110085},
	{"Pitampura", 110034},
	{"Dwarka", 110075},
	{"Saket", 110017},
	{"Lajpat Nagar", 110024},
	{"Karol Bagh", 110005},
	{"Shalimar Bagh", 110088},
	{"Janakpuri", 110058},
}

// SeedSample inserts count demonstration postings around Delhi.
func (s *JobService) SeedSample(ctx context.Context, count int) ([]domain.JobPosting, error) {
	if count <= 0 || count > 50 {
		return nil, &InputError{Field: "count", Message: "count must be between 1 and 50"}
	}

	now := s.now().UTC()
	postings := make([]domain.JobPosting, 0, count)
	for i := 0; i < count; i++ {
		area := sampleSubDistricts[i%len(sampleSubDistricts)]
		start := now.AddDate(0, 0, 1+i%7)
		postings = append(postings, domain.JobPosting{
			ID:           uuid.NewString(),
			StaffID:      domain.UnassignedStaffID,
			Status:       domain.JobAvailable,
			CustomerName: fmt.Sprintf("Patient %d", i+1),
			CustomerAge:  60 + (i*7)%30,
			Description:  "Elderly care with medication reminders and mobility support",
			Requirements: []string{"Hindi", "Experience with elderly patients"},
			District:     "Delhi",
			SubDistrict:  area.name,
			Pincode:      area.pincode,
			JobType:      "24 hour Care",
			StartDate:    start,
			EndDate:      start.AddDate(0, 1, 0),
			CreatedAt:    now,
		})
	}

	if err := s.jobs.InsertJobs(ctx, postings); err != nil {
		return nil, fmt.Errorf("insert sample jobs: %w", err)
	}
	s.logger.Info("sample jobs inserted", "count", len(postings))
	return postings, nil
}
