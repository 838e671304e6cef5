package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// jobExpiry is how long a queued job stays valid before the GC or the
// consumer drops it.
const jobExpiry = 24 * time.Hour

// Publisher wraps a JobQueue with typed enqueue helpers for the jobs
// this system produces.
type Publisher struct {
	queue JobQueue
}

// NewPublisher creates a publisher over the queue.
func NewPublisher(q JobQueue) *Publisher {
	return &Publisher{queue: q}
}

// EnqueueNoteEnrichment schedules the enrichment pipeline for a note.
func (p *Publisher) EnqueueNoteEnrichment(ctx context.Context, ownerID, noteID uuid.UUID) error {
	job := NewJob(JobTypeNoteEnrichment, ownerID, &noteID)
	expiry := time.Now().Add(jobExpiry)
	job.NotAfter = &expiry
	return p.queue.Enqueue(ctx, job)
}

// ScheduleMaintenance schedules a full maintenance run for an owner.
func (p *Publisher) ScheduleMaintenance(ctx context.Context, ownerID uuid.UUID) error {
	job := NewJob(JobTypeMaintenance, ownerID, nil)
	expiry := time.Now().Add(jobExpiry)
	job.NotAfter = &expiry
	return p.queue.Enqueue(ctx, job)
}

// EnqueueOverviewRegen schedules overview regeneration for a bucket.
func (p *Publisher) EnqueueOverviewRegen(ctx context.Context, ownerID, bucketID uuid.UUID) error {
	job := NewJob(JobTypeOverviewRegen, ownerID, nil)
	job.BucketID = &bucketID
	expiry := time.Now().Add(jobExpiry)
	job.NotAfter = &expiry
	return p.queue.Enqueue(ctx, job)
}
