package testutil

import (
	"context"
	"sync"

	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/warehouse"
)

// Submission records one FakeService.Submit call.
type Submission struct {
	ProjectID string
	Request   warehouse.Request
}

// FakeJob is a canned query job.
type FakeJob struct {
	JobID   string
	Bytes   int64
	Result  []render.Row
	ReadErr error
}

func (j *FakeJob) ID() string                 { return j.JobID }
func (j *FakeJob) TotalBytesProcessed() int64 { return j.Bytes }

func (j *FakeJob) Rows(ctx context.Context) ([]render.Row, error) {
	if j.ReadErr != nil {
		return nil, j.ReadErr
	}
	return j.Result, nil
}

// FakeService answers every submission with Job, or fails with Err.
//
// Thread-safety: Submit and Submissions are safe for concurrent use.
type FakeService struct {
	Job *FakeJob
	Err error

	mu          sync.Mutex
	submissions []Submission
}

// Submit implements warehouse.Service.
func (s *FakeService) Submit(ctx context.Context, projectID string, req warehouse.Request) (warehouse.Job, error) {
	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{ProjectID: projectID, Request: req})
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if s.Job == nil {
		return &FakeJob{JobID: "job-1"}, nil
	}
	return s.Job, nil
}

// Submissions returns every recorded call.
func (s *FakeService) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// SQL returns the submitted SQL texts.
func (s *FakeService) SQL() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.submissions))
	for i, sub := range s.submissions {
		out[i] = sub.Request.SQL
	}
	return out
}
