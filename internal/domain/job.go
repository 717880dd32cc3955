package domain

import (
	"strings"
	"time"
)

// JobStatus is the state of a job posting.
type JobStatus string

const (
	JobAvailable JobStatus = "available"
	JobAssigned  JobStatus = "assigned"
	JobOngoing   JobStatus = "ongoing"
	JobCompleted JobStatus = "completed"
	JobRejected  JobStatus = "rejected"
	JobUnknown   JobStatus = "unknown"
)

// UnassignedStaffID marks postings nobody has been assigned to yet.
const UnassignedStaffID = "unknown"

// Default values filled in for postings with missing fields.
const (
	DefaultCustomerName = "Unknown Patient"
	DefaultDescription  = "No description provided"
	DefaultLocation     = "Unknown Location"
	DefaultJobType      = "Unknown Job Type"
	DefaultPincode      = 110042
)

// JobPosting is a read-only job listing shown to live staff.
type JobPosting struct {
	ID           string    `json:"id"`
	StaffID      string    `json:"staffId"`
	Status       JobStatus `json:"status"`
	CustomerName string    `json:"customerName"`
	CustomerAge  int       `json:"customerAge"`
	Description  string    `json:"description"`
	Requirements []string  `json:"requirements"`
	District     string    `json:"district"`
	SubDistrict  string    `json:"subDistrict"`
	Pincode      int       `json:"pincode"`
	JobType      string    `json:"JobType"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Normalize fills missing fields with display defaults.
func (j *JobPosting) Normalize(now time.Time) {
	if strings.TrimSpace(string(j.Status)) == "" {
		j.Status = JobUnknown
	}
	if strings.TrimSpace(j.CustomerName) == "" {
		j.CustomerName = DefaultCustomerName
	}
	if j.CustomerAge < 0 {
		j.CustomerAge = 0
	}
	if strings.TrimSpace(j.Description) == "" {
		j.Description = DefaultDescription
	}
	if j.Requirements == nil {
		j.Requirements = []string{}
	}
	if strings.TrimSpace(j.District) == "" {
		j.District = DefaultLocation
	}
	if strings.TrimSpace(j.SubDistrict) == "" {
		j.SubDistrict = DefaultLocation
	}
	if j.Pincode <= 0 {
		j.Pincode = DefaultPincode
	}
	if strings.TrimSpace(j.JobType) == "" {
		j.JobType = DefaultJobType
	}
	if j.StartDate.IsZero() {
		j.StartDate = now
	}
	if j.EndDate.IsZero() {
		j.EndDate = now
	}
}

// JobFacet is the status filter the job list is narrowed by.
type JobFacet string

const FacetAll JobFacet = "all"

// ParseJobFacet accepts "all" or any job status. Empty means all.
func ParseJobFacet(raw string) (JobFacet, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch JobStatus(v) {
	case "":
		return FacetAll, true
	case JobAvailable, JobAssigned, JobOngoing, JobCompleted, JobRejected:
		return JobFacet(v), true
	}
	if JobFacet(v) == FacetAll {
		return FacetAll, true
	}
	return "", false
}

// FilterJobs keeps postings matching facet, preserving order.
func FilterJobs(jobs []JobPosting, facet JobFacet) []JobPosting {
	out := make([]JobPosting, 0, len(jobs))
	for _, j := range jobs {
		if facet == FacetAll || string(j.Status) == string(facet) {
			out = append(out, j)
		}
	}
	return out
}
