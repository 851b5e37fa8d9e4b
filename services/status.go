package services

import (
	"context"
	"fmt"
	"time"

	"slidebot/models"

	"github.com/redis/go-redis/v9"
)

// RedisStatusStore mirrors each job's latest status into a hash that expires
// after ttl. It is a view for operators, not a recovery log.
type RedisStatusStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStatusStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStatusStore {
	return &RedisStatusStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStatusStore) Key(jobID string) string {
	return fmt.Sprintf("%sconversion:status:%s", r.prefix, jobID)
}

func (r *RedisStatusStore) RecordStatus(ctx context.Context, job *models.ConversionJob) error {
	key := r.Key(job.ID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, statusFields(job))
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record status of %s: %w", job.ID, err)
	}
	return nil
}

func statusFields(job *models.ConversionJob) map[string]interface{} {
	fields := map[string]interface{}{
		"status":       string(job.Status),
		"requester_id": job.RequesterID,
		"filename":     job.OriginalFilename,
		"updated_at":   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.Error != "" {
		fields["error"] = job.Error
	}
	return fields
}
