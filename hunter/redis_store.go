package hunter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey = "applier:jobs"
	seenKey = "applier:jobs:seen"
)

// RedisStore persists job records and the processed-ID set used for
// deduplication across runs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// SaveJob upserts one job record.
func (s *RedisStore) SaveJob(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = JobID(job.Company, job.Title)
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, jobsKey, job.ID, data).Err()
}

// SaveJobs filters by ATS, drops already-seen IDs and stores the rest.
// Returns the newly stored jobs.
func (s *RedisStore) SaveJobs(ctx context.Context, jobs []Job) ([]Job, error) {
	fresh := make([]Job, 0, len(jobs))
	for _, job := range FilterByATS(jobs) {
		seen, err := s.client.SIsMember(ctx, seenKey, job.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("seen lookup failed: %w", err)
		}
		if seen {
			continue
		}
		if err := s.SaveJob(ctx, job); err != nil {
			return nil, err
		}
		fresh = append(fresh, job)
	}
	return fresh, nil
}

// MarkProcessed records a job ID in the dedup set.
func (s *RedisStore) MarkProcessed(ctx context.Context, jobID string) error {
	return s.client.SAdd(ctx, seenKey, jobID).Err()
}

// Jobs returns all stored job records, ordered by posting date then ID.
// The hash itself is unordered, so the sort is what makes batches stable.
func (s *RedisStore) Jobs(ctx context.Context) ([]Job, error) {
	raw, err := s.client.HGetAll(ctx, jobsKey).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raw))
	for _, data := range raw {
		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	SortJobs(jobs)
	return jobs, nil
}

// FetchJobs yields up to limit stored jobs that have not been processed yet,
// satisfying the Source contract.
func (s *RedisStore) FetchJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	all, err := s.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, limit)
	for _, job := range all {
		seen, err := s.client.SIsMember(ctx, seenKey, job.ID).Result()
		if err != nil {
			return nil, fmt.Errorf("seen lookup failed: %w", err)
		}
		if seen {
			continue
		}
		out = append(out, job)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
