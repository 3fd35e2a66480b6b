// Package bigquery implements warehouse.Service on the BigQuery client.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	bq "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/roach88/lakerun/internal/render"
	"github.com/roach88/lakerun/internal/warehouse"
)

// Service submits queries through one client per project.
//
// Thread-safety: Service is safe for concurrent use.
type Service struct {
	opts []option.ClientOption

	mu      sync.Mutex
	clients map[string]*bq.Client
}

// New creates a Service. opts are passed to every client.
func New(opts ...option.ClientOption) *Service {
	return &Service{opts: opts, clients: make(map[string]*bq.Client)}
}

// Submit implements warehouse.Service. A real run waits for the job to
// finish so the processed-byte count is final.
func (s *Service) Submit(ctx context.Context, projectID string, req warehouse.Request) (warehouse.Job, error) {
	client, err := s.client(ctx, projectID)
	if err != nil {
		return nil, err
	}

	q := client.Query(req.SQL)
	q.DryRun = req.DryRun
	q.UseLegacySQL = false

	j, err := q.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("running query: %w", err)
	}

	status := j.LastStatus()
	if !req.DryRun {
		status, err = j.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("waiting for job %s: %w", j.ID(), err)
		}
	}
	if status == nil {
		return nil, fmt.Errorf("job %s returned no status", j.ID())
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID(), err)
	}

	var bytes int64
	if status.Statistics != nil {
		bytes = status.Statistics.TotalBytesProcessed
	}
	return &job{j: j, bytes: bytes}, nil
}

// Close closes every client.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for id, c := range s.clients {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing client for %s: %w", id, err))
		}
		delete(s.clients, id)
	}
	return errors.Join(errs...)
}

func (s *Service) client(ctx context.Context, projectID string) (*bq.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[projectID]; ok {
		return c, nil
	}
	c, err := bq.NewClient(ctx, projectID, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", projectID, err)
	}
	s.clients[projectID] = c
	return c, nil
}

// DetectProject returns the project of the ambient credentials.
func DetectProject(ctx context.Context, opts ...option.ClientOption) (string, error) {
	c, err := bq.NewClient(ctx, bq.DetectProjectID, opts...)
	if err != nil {
		return "", fmt.Errorf("detecting project: %w", err)
	}
	defer c.Close()
	return c.Project(), nil
}

type job struct {
	j     *bq.Job
	bytes int64
}

func (j *job) ID() string                 { return j.j.ID() }
func (j *job) TotalBytesProcessed() int64 { return j.bytes }

// Rows reads every page of the result set.
func (j *job) Rows(ctx context.Context) ([]render.Row, error) {
	it, err := j.j.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading job %s: %w", j.j.ID(), err)
	}

	var rows []render.Row
	for {
		var values []bq.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading job %s: %w", j.j.ID(), err)
		}
		rows = append(rows, ToRow(it.Schema, values))
	}
	return rows, nil
}

// ToRow pairs values with their schema fields, in schema order.
// RECORD values become nested rows; repeated values become slices.
func ToRow(schema bq.Schema, values []bq.Value) render.Row {
	row := make(render.Row, 0, len(schema))
	for i, field := range schema {
		var v bq.Value
		if i < len(values) {
			v = values[i]
		}
		row = append(row, render.Field{Name: field.Name, Value: convert(field, v)})
	}
	return row
}

func convert(field *bq.FieldSchema, v bq.Value) any {
	if v == nil {
		return nil
	}
	if field.Repeated {
		items, ok := v.([]bq.Value)
		if !ok {
			return v
		}
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = convertOne(field, item)
		}
		return out
	}
	return convertOne(field, v)
}

func convertOne(field *bq.FieldSchema, v bq.Value) any {
	switch val := v.(type) {
	case []bq.Value:
		if field.Type == bq.RecordFieldType {
			return ToRow(field.Schema, val)
		}
		return val
	case *big.Rat:
		if field.Type == bq.BigNumericFieldType {
			return bq.BigNumericString(val)
		}
		return bq.NumericString(val)
	default:
		return v
	}
}
