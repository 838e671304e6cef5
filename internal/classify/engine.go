// Package classify proposes taxonomy placements for newly captured
// notes and applies the confidence policy that decides whether a
// proposal files, suggests, or abstains.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
)

const (
	// SuggestThreshold is the minimum confidence at which a proposed
	// bucket is recorded as a suggestion.
	SuggestThreshold = 0.4

	// PreFileThreshold is the confidence at or above which the note is
	// pre-filed into the proposed bucket. The note still lands with
	// is_classified=false; only user confirmation flips that.
	PreFileThreshold = 0.85
)

// Result is one placement proposal from the language model.
type Result struct {
	BucketID          *uuid.UUID
	Confidence        float64
	Tags              []string
	IsOriginalThought bool
	NewBucket         *NewBucketProposal
}

// NewBucketProposal asks for a bucket that does not exist yet.
type NewBucketProposal struct {
	Name string            `json:"name"`
	Kind models.BucketKind `json:"kind"`
}

// Engine classifies note content against an owner's taxonomy.
type Engine struct {
	model    ai.LanguageModel
	taxonomy *taxonomy.Cache
	buckets  database.BucketRepositoryInterface
	logger   *zap.Logger
}

// NewEngine creates a classification engine.
func NewEngine(model ai.LanguageModel, tax *taxonomy.Cache, buckets database.BucketRepositoryInterface, logger *zap.Logger) *Engine {
	return &Engine{model: model, taxonomy: tax, buckets: buckets, logger: logger}
}

// Input carries the content to classify.
type Input struct {
	Title      string
	Content    string
	Summary    string
	SourceKind models.NoteSource
	UserNote   string
}

const classifySystemPrompt = `You are a filing assistant for a personal knowledge base organized as a tree of buckets (projects, areas, resources, archives). Given a new piece of content and the current bucket tree, pick the single best existing bucket, or propose one new bucket if nothing fits.

Respond with a JSON object:
{
  "bucket_id": "<uuid of the chosen bucket, or null>",
  "confidence": <0.0-1.0>,
  "tags": ["..."],
  "is_original_thought": <true if this reads like the user's own idea rather than captured external content>,
  "new_bucket": {"name": "...", "kind": "project|area|resource"} or null
}

Only propose new_bucket when no existing bucket is a reasonable fit. Confidence reflects how certain you are about the placement, not about the content.`

// rawResult mirrors the JSON shape the model is asked to produce.
type rawResult struct {
	BucketID          string             `json:"bucket_id"`
	Confidence        float64            `json:"confidence"`
	Tags              []string           `json:"tags"`
	IsOriginalThought bool               `json:"is_original_thought"`
	NewBucket         *NewBucketProposal `json:"new_bucket"`
}

// Classify asks the model for a placement. It returns (nil, err) on
// any failure; callers must treat nil as "leave unclassified" and keep
// going.
func (e *Engine) Classify(ctx context.Context, ownerID uuid.UUID, in Input) (*Result, error) {
	snap, err := e.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	prompt := e.buildPrompt(snap, in)
	raw, err := e.model.Complete(ctx, classifySystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("classification request failed: %w", err)
	}

	var parsed rawResult
	if err := json.Unmarshal([]byte(ai.ExtractJSONObject(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("unparsable classification response: %w", err)
	}
	if parsed.Confidence < 0 || parsed.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v out of range", parsed.Confidence)
	}

	result := &Result{
		Confidence:        parsed.Confidence,
		Tags:              parsed.Tags,
		IsOriginalThought: parsed.IsOriginalThought,
	}

	if parsed.BucketID != "" && parsed.BucketID != "null" {
		id, err := uuid.Parse(parsed.BucketID)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket id in response: %w", err)
		}
		if _, ok := snap.ByID[id]; !ok {
			return nil, fmt.Errorf("model proposed unknown bucket %s", id)
		}
		result.BucketID = &id
	}

	if parsed.NewBucket != nil {
		if strings.TrimSpace(parsed.NewBucket.Name) == "" || !models.ValidKind(parsed.NewBucket.Kind) {
			e.logger.Debug("ignoring malformed new-bucket proposal",
				zap.String("name", parsed.NewBucket.Name),
				zap.String("kind", string(parsed.NewBucket.Kind)))
		} else {
			result.NewBucket = parsed.NewBucket
		}
	}

	return result, nil
}

// MaterializeNewBucket creates the bucket a proposal names under the
// root of its kind, reusing an existing same-name sibling if one is
// already there. The returned id replaces the proposal as the note's
// suggestion target.
func (e *Engine) MaterializeNewBucket(ctx context.Context, ownerID uuid.UUID, proposal *NewBucketProposal) (*uuid.UUID, error) {
	root, err := e.buckets.GetRootByKind(ctx, ownerID, proposal.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s root: %w", proposal.Kind, err)
	}

	snap, err := e.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	if node, ok := snap.ByID[root.ID]; ok {
		for _, child := range node.Children {
			if strings.EqualFold(child.Bucket.Name, proposal.Name) {
				id := child.Bucket.ID
				return &id, nil
			}
		}
	}

	bucket := &models.Bucket{
		ID:       uuid.New(),
		OwnerID:  ownerID,
		Name:     strings.TrimSpace(proposal.Name),
		Kind:     proposal.Kind,
		ParentID: &root.ID,
	}
	if err := e.buckets.Create(ctx, bucket); err != nil {
		return nil, fmt.Errorf("failed to create suggested bucket: %w", err)
	}
	e.taxonomy.Invalidate(ownerID)
	return &bucket.ID, nil
}

// ApplyPolicy writes the confidence policy onto the note. A proposal
// below the suggest threshold is dropped entirely; between the
// thresholds it is recorded as a suggestion only; at or above the
// pre-file threshold the note is also pre-filed into the bucket. The
// note's is_classified flag is never touched here.
func ApplyPolicy(note *models.Note, result *Result) {
	note.BucketID = nil
	note.AISuggestedBucket = nil
	note.AIConfidence = nil

	if result == nil || result.BucketID == nil {
		return
	}
	if result.Confidence < SuggestThreshold {
		return
	}

	confidence := result.Confidence
	suggested := *result.BucketID
	note.AISuggestedBucket = &suggested
	note.AIConfidence = &confidence

	if result.Confidence >= PreFileThreshold {
		assigned := suggested
		note.BucketID = &assigned
	}
}

func (e *Engine) buildPrompt(snap *taxonomy.Snapshot, in Input) string {
	var sb strings.Builder
	sb.WriteString("Current bucket tree:\n")
	for _, root := range snap.Roots {
		renderNode(&sb, root, 0)
	}

	sb.WriteString("\nContent to file:\n")
	fmt.Fprintf(&sb, "Title: %s\n", in.Title)
	fmt.Fprintf(&sb, "Source: %s\n", in.SourceKind)
	if in.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", in.Summary)
	}
	if in.UserNote != "" {
		fmt.Fprintf(&sb, "User's note: %s\n", in.UserNote)
	}
	fmt.Fprintf(&sb, "Content:\n%s\n", truncate(in.Content, 4000))
	return sb.String()
}

func renderNode(sb *strings.Builder, node *taxonomy.Node, depth int) {
	fmt.Fprintf(sb, "%s- %s [%s] (id: %s, notes: %d)\n",
		strings.Repeat("  ", depth), node.Bucket.Name, node.Bucket.Kind, node.Bucket.ID, node.NoteCount)
	for _, child := range node.Children {
		renderNode(sb, child, depth+1)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
