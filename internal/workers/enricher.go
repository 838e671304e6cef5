// Package workers consumes queue jobs: the note enrichment pipeline,
// maintenance runs, and bucket overview regeneration.
package workers

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stashd/stash/internal/classify"
	"github.com/stashd/stash/internal/connections"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/maintenance"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/queue"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
)

const summarizeSystemPrompt = `Summarize the given content in 2-3 sentences for a personal knowledge base. Capture what the content is about and why someone would have saved it. Respond with the summary only.`

// Enricher processes note enrichment, maintenance, and overview jobs.
type Enricher struct {
	model       ai.LanguageModel
	notes       database.NoteRepositoryInterface
	buckets     database.BucketRepositoryInterface
	classifier  *classify.Engine
	detector    *connections.Detector
	maintenance *maintenance.Engine
	taxonomy    *taxonomy.Cache
	jobQueue    queue.JobQueue // For re-enqueueing jobs with delays
}

// NewEnricher creates a new enricher.
func NewEnricher(
	model ai.LanguageModel,
	notes database.NoteRepositoryInterface,
	buckets database.BucketRepositoryInterface,
	classifier *classify.Engine,
	detector *connections.Detector,
	maint *maintenance.Engine,
	tax *taxonomy.Cache,
	jobQueue queue.JobQueue,
) *Enricher {
	return &Enricher{
		model:       model,
		notes:       notes,
		buckets:     buckets,
		classifier:  classifier,
		detector:    detector,
		maintenance: maint,
		taxonomy:    tax,
		jobQueue:    jobQueue,
	}
}

// ProcessNoteEnrichmentJob runs the full pipeline for one note:
// summarize, classify, embed, detect connections. Classification and
// connection failures degrade (the note keeps its fallback state);
// embedding failures are returned for retry since the later stages
// depend on the vector.
func (e *Enricher) ProcessNoteEnrichmentJob(ctx context.Context, job *queue.Job) error {
	if job.NoteID == nil {
		return fmt.Errorf("note_id is required for enrichment job")
	}

	note, err := e.notes.GetByID(ctx, *job.NoteID)
	if err != nil {
		return fmt.Errorf("failed to get note: %w", err)
	}
	if note.OwnerID != job.OwnerID {
		return fmt.Errorf("note does not belong to owner")
	}

	// Summarize. Images go through vision; everything else through the
	// chat model. A failed summary is not fatal.
	if note.Summary == "" && strings.TrimSpace(note.Content) != "" {
		summary, err := e.summarize(ctx, note)
		if err != nil {
			log.Printf("Summarization failed for note %s: %v", note.ID, err)
		} else {
			note.Summary = summary
		}
	}

	// Classify, unless the user already confirmed a placement.
	if !note.IsClassified {
		result, err := e.classifier.Classify(ctx, job.OwnerID, classify.Input{
			Title:      note.Title,
			Content:    note.Content,
			Summary:    note.Summary,
			SourceKind: note.Source,
		})
		if err != nil {
			log.Printf("Classification failed for note %s, leaving unclassified: %v", note.ID, err)
			result = nil
		}
		if result != nil && result.BucketID == nil && result.NewBucket != nil {
			id, err := e.classifier.MaterializeNewBucket(ctx, job.OwnerID, result.NewBucket)
			if err != nil {
				log.Printf("Failed to materialize suggested bucket for note %s: %v", note.ID, err)
			} else {
				result.BucketID = id
			}
		}
		classify.ApplyPolicy(note, result)
		if result != nil && len(result.Tags) > 0 {
			note.Tags = result.Tags
		}
	}

	// Embed. The connection stage depends on this, so a failure here is
	// worth a retry.
	vec, err := e.model.Embed(ctx, note.Title+"\n"+note.Content)
	if err != nil {
		if updateErr := e.notes.Update(ctx, note); updateErr != nil {
			log.Printf("Failed to persist partial enrichment for note %s: %v", note.ID, updateErr)
		}
		return fmt.Errorf("failed to embed note: %w", err)
	}
	note.Embedding = vec

	if err := e.notes.Update(ctx, note); err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	e.taxonomy.Invalidate(job.OwnerID)

	if _, err := e.detector.Detect(ctx, job.OwnerID, note.ID, vec); err != nil {
		log.Printf("Connection detection failed for note %s: %v", note.ID, err)
	}

	// A pre-filed note changes its bucket's contents; refresh the
	// overview when enough notes have accumulated.
	if note.BucketID != nil {
		e.maybeScheduleOverview(ctx, job.OwnerID, *note.BucketID)
	}

	log.Printf("Enriched note %s: classified=%v, tags=%v", note.ID, note.AISuggestedBucket != nil, note.Tags)
	return nil
}

func (e *Enricher) summarize(ctx context.Context, note *models.Note) (string, error) {
	if note.Source == models.NoteSourceImage && note.Payload.URL != "" {
		return e.model.DescribeImage(ctx, note.Payload.URL, "Describe this image for a personal knowledge base.")
	}
	return e.model.Complete(ctx, summarizeSystemPrompt,
		fmt.Sprintf("Title: %s\n\n%s", note.Title, note.Content))
}

// ProcessMaintenanceJob runs all maintenance routines for the owner.
func (e *Enricher) ProcessMaintenanceJob(ctx context.Context, job *queue.Job) error {
	e.maintenance.RunAll(ctx, job.OwnerID)
	log.Printf("Maintenance run completed for owner %s", job.OwnerID)
	return nil
}

// overviewRegenMinDelta is how many new notes a bucket needs before
// its overview is regenerated.
const overviewRegenMinDelta = 5

const overviewSystemPrompt = `Write a 2-4 sentence overview of what this collection of notes covers, as if introducing the category to its owner. Respond with the overview only.`

// ProcessOverviewRegenJob regenerates the bucket's overview text if
// enough notes arrived since the last generation.
func (e *Enricher) ProcessOverviewRegenJob(ctx context.Context, job *queue.Job) error {
	if job.BucketID == nil {
		return fmt.Errorf("bucket_id is required for overview job")
	}

	bucket, err := e.buckets.GetByID(ctx, *job.BucketID)
	if err != nil {
		return fmt.Errorf("failed to get bucket: %w", err)
	}
	if bucket.OwnerID != job.OwnerID {
		return fmt.Errorf("bucket does not belong to owner")
	}

	notes, err := e.notes.ListByBucket(ctx, job.OwnerID, bucket.ID)
	if err != nil {
		return fmt.Errorf("failed to list bucket notes: %w", err)
	}
	if len(notes)-bucket.OverviewNoteCount < overviewRegenMinDelta {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Category: %s\n\nNotes:\n", bucket.Name)
	for _, n := range notes {
		fmt.Fprintf(&sb, "- %s", n.Title)
		if n.Summary != "" {
			fmt.Fprintf(&sb, ": %s", n.Summary)
		}
		sb.WriteString("\n")
	}

	overview, err := e.model.Complete(ctx, overviewSystemPrompt, sb.String())
	if err != nil {
		return fmt.Errorf("failed to generate overview: %w", err)
	}

	bucket.Overview = strings.TrimSpace(overview)
	bucket.OverviewNoteCount = len(notes)
	if err := e.buckets.Update(ctx, bucket); err != nil {
		return fmt.Errorf("failed to store overview: %w", err)
	}

	log.Printf("Regenerated overview for bucket %s (%d notes)", bucket.ID, len(notes))
	return nil
}

// maybeScheduleOverview enqueues an overview regeneration job for a
// bucket that just received a note. The regen job itself decides
// whether enough notes accumulated to be worth a model call.
func (e *Enricher) maybeScheduleOverview(ctx context.Context, ownerID, bucketID uuid.UUID) {
	if e.jobQueue == nil {
		return
	}
	job := queue.NewJob(queue.JobTypeOverviewRegen, ownerID, nil)
	job.BucketID = &bucketID
	if err := e.jobQueue.Enqueue(ctx, job); err != nil {
		log.Printf("Failed to enqueue overview regeneration for bucket %s: %v", bucketID, err)
	}
}

// ProcessJob dispatches a message to its handler and handles
// ack/nack and retry bookkeeping.
func (e *Enricher) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	// Check if job should be processed now (respect NotBefore)
	if !job.ShouldProcess() {
		log.Printf("Job %s not ready yet (NotBefore: %v), skipping", job.ID, job.NotBefore)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job for later processing: %v", ackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeNoteEnrichment:
		if err := e.ProcessNoteEnrichmentJob(ctx, job); err != nil {
			return e.handleJobError(ctx, msg, job, err, "note enrichment")
		}
	case queue.JobTypeMaintenance:
		if err := e.ProcessMaintenanceJob(ctx, job); err != nil {
			return e.handleJobError(ctx, msg, job, err, "maintenance")
		}
	case queue.JobTypeOverviewRegen:
		if err := e.ProcessOverviewRegenJob(ctx, job); err != nil {
			return e.handleJobError(ctx, msg, job, err, "overview regeneration")
		}
	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			log.Printf("Failed to nack unknown job type: %v", nackErr)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// handleJobError handles errors from job processing with retry logic
// keyed on the error class: rate limits and quota errors re-enqueue
// with a delay, everything else retries immediately until the budget
// runs out.
func (e *Enricher) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error, jobType string) error {
	if !job.CanRetry() {
		log.Printf("Job %s exhausted retries (%d), sending to DLQ: %v", job.ID, job.MaxRetries, err)
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Printf("Failed to nack exhausted job: %v", nackErr)
		}
		return fmt.Errorf("%s failed permanently: %w", jobType, err)
	}

	if ai.IsRateLimitError(err) || ai.IsQuotaError(err) {
		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := time.Now().Add(retryDelay)
		log.Printf("Re-enqueueing %s job %s with NotBefore=%v (retry in %v)",
			jobType, job.ID, notBefore, retryDelay)

		delayedJob := &queue.Job{
			ID:         job.ID,
			Type:       job.Type,
			OwnerID:    job.OwnerID,
			NoteID:     job.NoteID,
			BucketID:   job.BucketID,
			NotBefore:  &notBefore,
			NotAfter:   job.NotAfter,
			Metadata:   job.Metadata,
			CreatedAt:  job.CreatedAt,
			RetryCount: job.RetryCount + 1,
			MaxRetries: job.MaxRetries,
		}

		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job before re-enqueue: %v", ackErr)
		}
		if e.jobQueue != nil {
			if enqueueErr := e.jobQueue.Enqueue(ctx, delayedJob); enqueueErr != nil {
				log.Printf("Failed to re-enqueue job %s with delay: %v", job.ID, enqueueErr)
			}
		}
		return fmt.Errorf("%s rate limited: %w", jobType, err)
	}

	// Transient failure: requeue for an immediate retry.
	log.Printf("%s job %s failed (retry %d/%d): %v", jobType, job.ID, job.RetryCount+1, job.MaxRetries, err)
	if nackErr := msg.Nack(true); nackErr != nil {
		log.Printf("Failed to nack job for retry: %v", nackErr)
	}
	return fmt.Errorf("%s failed: %w", jobType, err)
}
