package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const conflictReportKey = "console:conflicts:latest"

var ErrNoReport = errors.New("no conflict report available")

// ReportStore publishes the conflict worker's latest report for the API.
type ReportStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportStore(client *redis.Client, ttl time.Duration) *ReportStore {
	return &ReportStore{client: client, ttl: ttl}
}

func (s *ReportStore) Save(ctx context.Context, report any) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal conflict report: %w", err)
	}
	if err := s.client.Set(ctx, conflictReportKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store conflict report: %w", err)
	}
	return nil
}

// Load decodes the latest report into dst. A missing or expired report
// returns ErrNoReport.
func (s *ReportStore) Load(ctx context.Context, dst any) error {
	data, err := s.client.Get(ctx, conflictReportKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNoReport
		}
		return fmt.Errorf("load conflict report: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode conflict report: %w", err)
	}
	return nil
}
