package hunter

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultBatchSize bounds how many jobs one run consumes.
const DefaultBatchSize = 10

// Source yields an ordered, finite batch of job records per run.
type Source interface {
	FetchJobs(ctx context.Context, limit int) ([]Job, error)
}

// StaticSource serves a fixed job list, ATS-filtered. Used for dry runs,
// tests and YAML-seeded batches.
type StaticSource struct {
	jobs []Job
}

func NewStaticSource(jobs []Job) *StaticSource {
	return &StaticSource{jobs: FilterByATS(jobs)}
}

// LoadStaticSource reads a YAML job seed file.
func LoadStaticSource(path string) (*StaticSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}
	var doc struct {
		Jobs []Job `yaml:"jobs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	return NewStaticSource(doc.Jobs), nil
}

func (s *StaticSource) FetchJobs(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 || limit > len(s.jobs) {
		limit = len(s.jobs)
	}
	out := make([]Job, limit)
	copy(out, s.jobs[:limit])
	return out, nil
}
