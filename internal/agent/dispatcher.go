package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/classify"
	"github.com/stashd/stash/internal/connections"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/outbox"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
)

const (
	// MinNotesForSubBucket is the rolled-up note count a parent chain
	// must hold before a sub-bucket may be created under it.
	MinNotesForSubBucket = 15

	searchCandidateLimit = 20
	searchResultLimit    = 5
	inboxListLimit       = 20
	maxTitleLength       = 80
)

// Dispatcher executes tool invocations on behalf of the agent loop.
// Execute always returns a JSON string; failures become {"error": ...}
// results the model can read, never Go errors.
type Dispatcher struct {
	notes      database.NoteRepositoryInterface
	buckets    database.BucketRepositoryInterface
	taxonomy   *taxonomy.Cache
	classifier *classify.Engine
	detector   *connections.Detector
	model      ai.LanguageModel
	outbox     *outbox.Outbox
	logger     *zap.Logger

	// onNoteSaved runs after each successful save, off the hot path.
	// The server wires it to the maintenance trigger.
	onNoteSaved func(ownerID uuid.UUID)

	// savedNoteIDs collects ids for the chat response; reset per request
	// by the caller via TakeSavedNoteIDs.
	savedNoteIDs []uuid.UUID
}

// NewDispatcher creates a tool dispatcher.
func NewDispatcher(
	notes database.NoteRepositoryInterface,
	buckets database.BucketRepositoryInterface,
	tax *taxonomy.Cache,
	classifier *classify.Engine,
	detector *connections.Detector,
	model ai.LanguageModel,
	ob *outbox.Outbox,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		notes:      notes,
		buckets:    buckets,
		taxonomy:   tax,
		classifier: classifier,
		detector:   detector,
		model:      model,
		outbox:     ob,
		logger:     logger,
	}
}

// SetNoteSavedHook registers a callback invoked after each save.
func (d *Dispatcher) SetNoteSavedHook(fn func(ownerID uuid.UUID)) {
	d.onNoteSaved = fn
}

// TakeSavedNoteIDs returns the note ids saved since the last call and
// resets the list. The dispatcher is used by one request at a time;
// the per-owner lock upstream guarantees that.
func (d *Dispatcher) TakeSavedNoteIDs() []uuid.UUID {
	ids := d.savedNoteIDs
	d.savedNoteIDs = nil
	return ids
}

// Execute runs the named tool against the input JSON and returns the
// result as a JSON string.
func (d *Dispatcher) Execute(ctx context.Context, ownerID uuid.UUID, name string, input json.RawMessage) string {
	switch ToolName(name) {
	case ToolSaveNote:
		return d.saveNote(ctx, ownerID, input)
	case ToolSearchNotes:
		return d.searchNotes(ctx, ownerID, input)
	case ToolShowInbox:
		return d.showInbox(ctx, ownerID)
	case ToolCreateBucket:
		return d.createBucket(ctx, ownerID, input)
	case ToolMoveNote:
		return d.moveNote(ctx, ownerID, input)
	case ToolRenameBucket:
		return d.renameBucket(ctx, ownerID, input)
	case ToolDeleteBucket:
		return d.deleteBucket(ctx, ownerID, input)
	case ToolFinalizeOnboarding:
		return d.finalizeOnboarding(ctx, ownerID, input)
	default:
		return errResult(fmt.Sprintf("unknown tool %q", name))
	}
}

func errResult(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

func jsonResult(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return errResult("failed to encode result")
	}
	return string(out)
}

type saveNoteArgs struct {
	Content    string `json:"content"`
	SourceType string `json:"source_type"`
}

func (d *Dispatcher) saveNote(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args saveNoteArgs
	_ = json.Unmarshal(input, &args)

	content := strings.TrimSpace(args.Content)
	if content == "" {
		return errResult("content is required")
	}
	source := models.NoteSource(strings.TrimSpace(args.SourceType))
	if source == "" {
		source = models.NoteSourceText
	}
	if !models.ValidSource(source) {
		return errResult(fmt.Sprintf("unknown source type %q", args.SourceType))
	}

	note := &models.Note{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   deriveTitle(content),
		Content: content,
		Source:  source,
	}

	result, err := d.classifier.Classify(ctx, ownerID, classify.Input{
		Title:      note.Title,
		Content:    content,
		SourceKind: source,
	})
	if err != nil {
		// Abstain and save unclassified.
		d.logger.Warn("classification failed on save",
			zap.String("owner_id", ownerID.String()), zap.Error(err))
		result = nil
	}
	if result != nil && result.BucketID == nil && result.NewBucket != nil {
		id, err := d.classifier.MaterializeNewBucket(ctx, ownerID, result.NewBucket)
		if err != nil {
			d.logger.Warn("failed to materialize suggested bucket", zap.Error(err))
		} else {
			result.BucketID = id
		}
	}
	classify.ApplyPolicy(note, result)
	if result != nil {
		note.Tags = result.Tags
	}

	// Agent-originated saves are never auto-filed: whatever the policy
	// pre-filed goes back to the inbox, keeping only the suggestion.
	note.BucketID = nil
	note.IsClassified = false

	if err := d.notes.Create(ctx, note); err != nil {
		return errResult(fmt.Sprintf("failed to save note: %v", err))
	}
	d.savedNoteIDs = append(d.savedNoteIDs, note.ID)
	d.taxonomy.Invalidate(ownerID)

	noteID := note.ID
	saved := *note
	d.outbox.Submit("note_enrichment", func(ctx context.Context) error {
		return d.enrichNote(ctx, &saved)
	})
	if d.onNoteSaved != nil {
		d.onNoteSaved(ownerID)
	}

	out := map[string]any{
		"note_id": noteID,
		"title":   note.Title,
		"status":  "saved to inbox",
	}
	if note.AISuggestedBucket != nil {
		if path, err := d.taxonomy.GetPath(ctx, ownerID, *note.AISuggestedBucket); err == nil {
			out["suggested_bucket"] = path
			out["confidence"] = *note.AIConfidence
		}
	}
	return jsonResult(out)
}

// enrichNote embeds the note and links it to its nearest neighbors.
// Runs detached from the save; failures are the outbox's to log.
func (d *Dispatcher) enrichNote(ctx context.Context, note *models.Note) error {
	vec, err := d.model.Embed(ctx, note.Title+"\n"+note.Content)
	if err != nil {
		return fmt.Errorf("failed to embed note %s: %w", note.ID, err)
	}
	note.Embedding = vec
	if err := d.notes.Update(ctx, note); err != nil {
		return fmt.Errorf("failed to store embedding for %s: %w", note.ID, err)
	}
	if _, err := d.detector.Detect(ctx, note.OwnerID, note.ID, vec); err != nil {
		d.logger.Warn("connection detection failed",
			zap.String("note_id", note.ID.String()), zap.Error(err))
	}
	return nil
}

type searchNotesArgs struct {
	Query string `json:"query"`
}

type searchHit struct {
	NoteID     uuid.UUID `json:"note_id"`
	Title      string    `json:"title"`
	BucketPath string    `json:"bucket_path"`
	Score      float64   `json:"score"`
}

func (d *Dispatcher) searchNotes(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args searchNotesArgs
	_ = json.Unmarshal(input, &args)
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return errResult("query is required")
	}

	lexNotes, lexRanks, err := d.notes.SearchLexical(ctx, ownerID, query, searchCandidateLimit)
	if err != nil {
		return errResult(fmt.Sprintf("search failed: %v", err))
	}

	scores := make(map[uuid.UUID]float64, len(lexNotes))
	titles := make(map[uuid.UUID]string, len(lexNotes))
	bucketIDs := make(map[uuid.UUID]*uuid.UUID, len(lexNotes))
	var maxLex float64
	for _, r := range lexRanks {
		if r > maxLex {
			maxLex = r
		}
	}
	for i, n := range lexNotes {
		rank := lexRanks[i]
		if maxLex > 0 {
			rank /= maxLex
		}
		scores[n.ID] = 0.5 * rank
		titles[n.ID] = n.Title
		bucketIDs[n.ID] = n.BucketID
	}

	// Vector half: degrade to lexical-only when the embedding fails.
	if vec, err := d.model.Embed(ctx, query); err != nil {
		d.logger.Warn("query embedding failed, lexical-only search", zap.Error(err))
	} else if candidates, err := d.notes.EmbeddedNotes(ctx, ownerID); err != nil {
		d.logger.Warn("embedded-note scan failed, lexical-only search", zap.Error(err))
	} else {
		for _, c := range candidates {
			sim := connections.CosineSimilarity(vec, c.Embedding)
			if sim <= 0 {
				continue
			}
			scores[c.NoteID] += 0.5 * sim
		}
	}

	ids := make([]uuid.UUID, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })
	if len(ids) > searchResultLimit {
		ids = ids[:searchResultLimit]
	}

	hits := make([]searchHit, 0, len(ids))
	for _, id := range ids {
		title, ok := titles[id]
		bucketID := bucketIDs[id]
		if !ok {
			note, err := d.notes.GetByID(ctx, id)
			if err != nil || note.OwnerID != ownerID {
				continue
			}
			title = note.Title
			bucketID = note.BucketID
		}
		hits = append(hits, searchHit{
			NoteID:     id,
			Title:      title,
			BucketPath: d.pathOrInbox(ctx, ownerID, bucketID),
			Score:      scores[id],
		})
	}
	return jsonResult(map[string]any{"results": hits})
}

func (d *Dispatcher) pathOrInbox(ctx context.Context, ownerID uuid.UUID, bucketID *uuid.UUID) string {
	if bucketID == nil {
		return "Inbox"
	}
	path, err := d.taxonomy.GetPath(ctx, ownerID, *bucketID)
	if err != nil {
		return "Inbox"
	}
	return path
}

func (d *Dispatcher) showInbox(ctx context.Context, ownerID uuid.UUID) string {
	notes, err := d.notes.ListInbox(ctx, ownerID, inboxListLimit)
	if err != nil {
		return errResult(fmt.Sprintf("failed to list inbox: %v", err))
	}

	type inboxEntry struct {
		NoteID          uuid.UUID `json:"note_id"`
		Title           string    `json:"title"`
		SuggestedBucket string    `json:"suggested_bucket,omitempty"`
		Confidence      *float64  `json:"confidence,omitempty"`
	}
	entries := make([]inboxEntry, 0, len(notes))
	for _, n := range notes {
		e := inboxEntry{NoteID: n.ID, Title: n.Title, Confidence: n.AIConfidence}
		if n.AISuggestedBucket != nil {
			if path, err := d.taxonomy.GetPath(ctx, ownerID, *n.AISuggestedBucket); err == nil {
				e.SuggestedBucket = path
			}
		}
		entries = append(entries, e)
	}
	return jsonResult(map[string]any{"inbox": entries, "count": len(entries)})
}

type createBucketArgs struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	ParentName  string `json:"parent_name"`
	Description string `json:"description"`
}

func (d *Dispatcher) createBucket(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args createBucketArgs
	_ = json.Unmarshal(input, &args)

	name := strings.TrimSpace(args.Name)
	if name == "" {
		return errResult("bucket name is required")
	}
	if len(name) > models.MaxBucketNameLength {
		return errResult(fmt.Sprintf("bucket name exceeds %d characters", models.MaxBucketNameLength))
	}
	kind := models.BucketKind(strings.ToLower(strings.TrimSpace(args.Type)))
	if !models.ValidKind(kind) {
		return errResult(fmt.Sprintf("unknown bucket type %q; use project, area or resource", args.Type))
	}
	if kind == models.BucketKindArchive {
		return errResult("buckets cannot be created directly under archive; archive an existing bucket instead")
	}

	snap, err := d.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load taxonomy: %v", err))
	}

	var parent *models.Bucket
	if strings.TrimSpace(args.ParentName) == "" {
		parent, err = d.buckets.GetRootByKind(ctx, ownerID, kind)
		if err != nil {
			return errResult(fmt.Sprintf("failed to resolve %s root: %v", kind, err))
		}
	} else {
		parent, err = taxonomy.Resolve(snap, args.ParentName)
		if err != nil {
			return errResult(err.Error())
		}
		if parent.Kind != kind {
			return errResult(fmt.Sprintf("parent %q is a %s bucket; a %s bucket cannot go under it", parent.Name, parent.Kind, kind))
		}
		// Sub-bucket guard: the existing chain must already hold enough
		// notes to justify splitting a level.
		if !parent.IsRoot() {
			node := snap.ByID[parent.ID]
			if node == nil || node.NoteCount < MinNotesForSubBucket {
				return errResult(fmt.Sprintf("%q holds fewer than %d notes; file more before adding sub-buckets", parent.Name, MinNotesForSubBucket))
			}
		}
	}

	bucket := &models.Bucket{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Kind:        kind,
		ParentID:    &parent.ID,
		Description: strings.TrimSpace(args.Description),
		Active:      true,
	}
	if err := d.buckets.Create(ctx, bucket); err != nil {
		return errResult(fmt.Sprintf("failed to create bucket: %v", err))
	}
	d.taxonomy.Invalidate(ownerID)

	path, _ := d.taxonomy.GetPath(ctx, ownerID, bucket.ID)
	return jsonResult(map[string]any{"bucket_id": bucket.ID, "path": path})
}

type moveNoteArgs struct {
	NoteID     string `json:"note_id"`
	TargetPath string `json:"target_path"`
}

func (d *Dispatcher) moveNote(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args moveNoteArgs
	_ = json.Unmarshal(input, &args)

	noteID, err := uuid.Parse(strings.TrimSpace(args.NoteID))
	if err != nil {
		return errResult("note_id must be a valid id")
	}
	note, err := d.notes.GetByID(ctx, noteID)
	if err != nil {
		return errResult(fmt.Sprintf("note not found: %v", err))
	}
	if note.OwnerID != ownerID {
		return errResult("note not found")
	}

	snap, err := d.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load taxonomy: %v", err))
	}
	target, err := taxonomy.Resolve(snap, args.TargetPath)
	if err != nil {
		return errResult(err.Error())
	}

	note.BucketID = &target.ID
	note.IsClassified = true
	if err := d.notes.Update(ctx, note); err != nil {
		return errResult(fmt.Sprintf("failed to move note: %v", err))
	}
	d.taxonomy.Invalidate(ownerID)

	path, _ := d.taxonomy.GetPath(ctx, ownerID, target.ID)
	return jsonResult(map[string]any{"note_id": note.ID, "moved_to": path})
}

type renameBucketArgs struct {
	BucketName string `json:"bucket_name"`
	NewName    string `json:"new_name"`
}

func (d *Dispatcher) renameBucket(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args renameBucketArgs
	_ = json.Unmarshal(input, &args)

	newName := strings.TrimSpace(args.NewName)
	if newName == "" {
		return errResult("new_name is required")
	}
	if len(newName) > models.MaxBucketNameLength {
		return errResult(fmt.Sprintf("bucket name exceeds %d characters", models.MaxBucketNameLength))
	}

	snap, err := d.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load taxonomy: %v", err))
	}
	bucket, err := taxonomy.Resolve(snap, args.BucketName)
	if err != nil {
		return errResult(err.Error())
	}
	if bucket.IsRoot() {
		return errResult(fmt.Sprintf("%q is a root bucket and cannot be renamed", bucket.Name))
	}

	oldName := bucket.Name
	bucket.Name = newName
	if err := d.buckets.Update(ctx, bucket); err != nil {
		return errResult(fmt.Sprintf("failed to rename bucket: %v", err))
	}
	d.taxonomy.Invalidate(ownerID)
	return jsonResult(map[string]any{"bucket_id": bucket.ID, "old_name": oldName, "new_name": newName})
}

type deleteBucketArgs struct {
	BucketName string `json:"bucket_name"`
}

func (d *Dispatcher) deleteBucket(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args deleteBucketArgs
	_ = json.Unmarshal(input, &args)

	snap, err := d.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load taxonomy: %v", err))
	}
	bucket, err := taxonomy.Resolve(snap, args.BucketName)
	if err != nil {
		return errResult(err.Error())
	}
	if bucket.IsRoot() {
		return errResult(fmt.Sprintf("%q is a root bucket and cannot be deleted", bucket.Name))
	}

	reset, err := d.buckets.DeleteSubtree(ctx, ownerID, bucket.ID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to delete bucket: %v", err))
	}
	d.taxonomy.Invalidate(ownerID)
	return jsonResult(map[string]any{
		"deleted":                 bucket.Name,
		"notes_returned_to_inbox": reset,
	})
}

type finalizeOnboardingArgs struct {
	Buckets []struct {
		Name        string `json:"name"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"buckets"`
}

func (d *Dispatcher) finalizeOnboarding(ctx context.Context, ownerID uuid.UUID, input json.RawMessage) string {
	var args finalizeOnboardingArgs
	_ = json.Unmarshal(input, &args)
	if len(args.Buckets) == 0 {
		return errResult("buckets is required")
	}

	if err := d.buckets.EnsureRoots(ctx, ownerID); err != nil {
		return errResult(fmt.Sprintf("failed to prepare roots: %v", err))
	}
	d.taxonomy.Invalidate(ownerID)

	snap, err := d.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return errResult(fmt.Sprintf("failed to load taxonomy: %v", err))
	}

	var created, skipped []string
	for _, b := range args.Buckets {
		name := strings.TrimSpace(b.Name)
		kind := models.BucketKind(strings.ToLower(strings.TrimSpace(b.Type)))
		if name == "" || !models.ValidKind(kind) || kind == models.BucketKindArchive {
			skipped = append(skipped, b.Name)
			continue
		}
		root, err := d.buckets.GetRootByKind(ctx, ownerID, kind)
		if err != nil {
			skipped = append(skipped, name)
			continue
		}
		if existingChild(snap, root.ID, name) {
			skipped = append(skipped, name)
			continue
		}
		bucket := &models.Bucket{
			ID:          uuid.New(),
			OwnerID:     ownerID,
			Name:        name,
			Kind:        kind,
			ParentID:    &root.ID,
			Description: strings.TrimSpace(b.Description),
			Active:      true,
		}
		if err := d.buckets.Create(ctx, bucket); err != nil {
			skipped = append(skipped, name)
			continue
		}
		created = append(created, name)
	}
	d.taxonomy.Invalidate(ownerID)
	return jsonResult(map[string]any{"created": created, "skipped": skipped})
}

func existingChild(snap *taxonomy.Snapshot, parentID uuid.UUID, name string) bool {
	node, ok := snap.ByID[parentID]
	if !ok {
		return false
	}
	for _, child := range node.Children {
		if strings.EqualFold(child.Bucket.Name, name) {
			return true
		}
	}
	return false
}

// deriveTitle takes the first line of content, truncated.
func deriveTitle(content string) string {
	line := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	line = strings.TrimSpace(line)
	if runes := []rune(line); len(runes) > maxTitleLength {
		line = strings.TrimSpace(string(runes[:maxTitleLength])) + "…"
	}
	if line == "" {
		return "Untitled note"
	}
	return line
}
