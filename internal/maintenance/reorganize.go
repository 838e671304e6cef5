package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
)

// reorganizeMaxTurns bounds the read-only inspection loop.
const reorganizeMaxTurns = 5

const reorganizeSystemPrompt = `You review the full structure of a personal knowledge base and propose maintenance changes. You may inspect buckets with the provided read-only tools before deciding.

When done, respond with a JSON array of suggestions (possibly empty):
[
  {"kind": "merge_buckets", "bucket_id": "...", "target_id": "...", "reason": "..."},
  {"kind": "rename_bucket", "bucket_id": "...", "new_name": "...", "reason": "..."},
  {"kind": "delete_bucket", "bucket_id": "...", "reason": "..."},
  {"kind": "archive_project", "bucket_id": "...", "reason": "..."},
  {"kind": "reclassify_note", "note_ids": ["..."], "bucket_id": "<target>", "reason": "..."}
]

Propose only changes with clear benefit. An empty array is a fine answer.`

func reorganizeTools() []ai.ToolSpec {
	return []ai.ToolSpec{
		{
			Name:        "inspect_bucket",
			Description: "List the titles of the notes in a bucket.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{"type": "string"},
				},
				"required": []string{"bucket_id"},
			},
		},
		{
			Name:        "get_bucket_activity",
			Description: "Get a bucket's note count and last capture date.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_id": map[string]any{"type": "string"},
				},
				"required": []string{"bucket_id"},
			},
		},
		{
			Name:        "list_empty_buckets",
			Description: "List the buckets that hold no notes at all.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// rawSuggestion mirrors the array elements the model produces.
type rawSuggestion struct {
	Kind     string   `json:"kind"`
	BucketID string   `json:"bucket_id"`
	TargetID string   `json:"target_id"`
	NewName  string   `json:"new_name"`
	NoteIDs  []string `json:"note_ids"`
	Reason   string   `json:"reason"`
}

// Reorganize snapshots the tree, lets the model inspect it through a
// read-only tool loop, and emits every schema-valid suggestion it
// returns. Returns the number of suggestions created.
func (e *Engine) Reorganize(ctx context.Context, ownerID uuid.UUID) (int, error) {
	snap, err := e.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	lastCaptures, err := e.notes.LastCaptures(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to load capture times: %w", err)
	}

	overview, err := e.treeOverview(ctx, ownerID, snap, lastCaptures)
	if err != nil {
		return 0, err
	}

	messages := []ai.ChatMessage{
		{Role: ai.RoleUser, Content: overview},
	}
	tools := reorganizeTools()

	var final string
	for turn := 0; turn < reorganizeMaxTurns; turn++ {
		resp, err := e.model.CompleteWithTools(ctx, messages, tools)
		if err != nil {
			return 0, fmt.Errorf("reorganization request failed: %w", err)
		}
		if resp.StopReason != ai.StopToolUse || len(resp.ToolCalls) == 0 {
			final = resp.AllText()
			break
		}

		messages = append(messages, ai.ChatMessage{
			Role:      ai.RoleAssistant,
			Content:   resp.FirstText(),
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			messages = append(messages, ai.ChatMessage{
				Role:       ai.RoleTool,
				Content:    e.runInspectionTool(ctx, ownerID, snap, lastCaptures, call),
				ToolCallID: call.ID,
			})
		}
	}
	if final == "" {
		// Budget exhausted mid-inspection; skip this run rather than
		// force a verdict.
		e.logger.Debug("reorganization inspection budget exhausted",
			zap.String("owner_id", ownerID.String()))
		return 0, nil
	}

	var proposals []rawSuggestion
	if err := json.Unmarshal([]byte(ai.ExtractJSONArray(final)), &proposals); err != nil {
		return 0, fmt.Errorf("unparsable reorganization response: %w", err)
	}

	created := 0
	for _, p := range proposals {
		s, err := e.buildSuggestion(ownerID, snap, p)
		if err != nil {
			e.logger.Warn("rejected reorganization proposal",
				zap.String("kind", p.Kind), zap.Error(err))
			continue
		}
		ok, err := e.emit(ctx, s)
		if err != nil {
			e.logger.Warn("failed to emit reorganization suggestion",
				zap.String("kind", p.Kind), zap.Error(err))
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (e *Engine) buildSuggestion(ownerID uuid.UUID, snap *taxonomy.Snapshot, p rawSuggestion) (*models.Suggestion, error) {
	kind := models.SuggestionKind(p.Kind)
	if !models.ValidSuggestionKind(kind) {
		return nil, fmt.Errorf("unknown kind %q", p.Kind)
	}

	payload := models.SuggestionPayload{NewName: p.NewName, Reason: p.Reason}
	if p.BucketID != "" {
		id, err := uuid.Parse(p.BucketID)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket_id: %w", err)
		}
		if _, ok := snap.ByID[id]; !ok {
			return nil, fmt.Errorf("bucket %s not in taxonomy", id)
		}
		payload.BucketID = &id
	}
	if p.TargetID != "" {
		id, err := uuid.Parse(p.TargetID)
		if err != nil {
			return nil, fmt.Errorf("invalid target_id: %w", err)
		}
		if _, ok := snap.ByID[id]; !ok {
			return nil, fmt.Errorf("target bucket %s not in taxonomy", id)
		}
		payload.TargetID = &id
	}
	for _, raw := range p.NoteIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid note id %q: %w", raw, err)
		}
		payload.NoteIDs = append(payload.NoteIDs, id)
	}

	return &models.Suggestion{OwnerID: ownerID, Kind: kind, Payload: payload}, nil
}

// treeOverview renders the snapshot the model reasons over: name,
// kind, parent, note count, sample titles, last capture.
func (e *Engine) treeOverview(ctx context.Context, ownerID uuid.UUID, snap *taxonomy.Snapshot, lastCaptures map[uuid.UUID]time.Time) (string, error) {
	var sb strings.Builder
	sb.WriteString("Current taxonomy:\n")
	for _, b := range snap.Buckets {
		node := snap.ByID[b.ID]
		fmt.Fprintf(&sb, "- %s [%s] (id: %s, notes: %d", snap.Paths[b.ID], b.Kind, b.ID, node.NoteCount)
		if last, ok := lastCaptures[b.ID]; ok {
			fmt.Fprintf(&sb, ", last capture: %s", last.Format("2006-01-02"))
		}
		sb.WriteString(")\n")
		if node.NoteCount > 0 && len(node.Children) == 0 {
			titles, err := e.notes.SampleTitles(ctx, ownerID, b.ID, 3)
			if err != nil {
				return "", fmt.Errorf("failed to sample titles: %w", err)
			}
			for _, t := range titles {
				fmt.Fprintf(&sb, "    · %s\n", t)
			}
		}
	}
	return sb.String(), nil
}

// runInspectionTool answers one read-only tool call from the
// reorganization loop.
func (e *Engine) runInspectionTool(ctx context.Context, ownerID uuid.UUID, snap *taxonomy.Snapshot, lastCaptures map[uuid.UUID]time.Time, call ai.ToolCall) string {
	fail := func(msg string) string {
		out, _ := json.Marshal(map[string]string{"error": msg})
		return string(out)
	}
	ok := func(v any) string {
		out, err := json.Marshal(v)
		if err != nil {
			return fail("failed to encode result")
		}
		return string(out)
	}

	var args struct {
		BucketID string `json:"bucket_id"`
	}
	_ = json.Unmarshal([]byte(call.Arguments), &args)

	switch call.Name {
	case "inspect_bucket":
		id, err := uuid.Parse(args.BucketID)
		if err != nil {
			return fail("bucket_id must be a valid id")
		}
		notes, err := e.notes.ListByBucket(ctx, ownerID, id)
		if err != nil {
			return fail(fmt.Sprintf("failed to list notes: %v", err))
		}
		titles := make([]string, 0, len(notes))
		for _, n := range notes {
			titles = append(titles, n.Title)
		}
		return ok(map[string]any{"bucket_id": id, "titles": titles})

	case "get_bucket_activity":
		id, err := uuid.Parse(args.BucketID)
		if err != nil {
			return fail("bucket_id must be a valid id")
		}
		node, found := snap.ByID[id]
		if !found {
			return fail("bucket not in taxonomy")
		}
		out := map[string]any{"bucket_id": id, "note_count": node.NoteCount}
		if last, found := lastCaptures[id]; found {
			out["last_capture"] = last.Format(time.RFC3339)
		}
		return ok(out)

	case "list_empty_buckets":
		var empty []map[string]any
		for _, b := range snap.Buckets {
			node := snap.ByID[b.ID]
			if !b.IsRoot() && node.NoteCount == 0 && len(node.Children) == 0 {
				empty = append(empty, map[string]any{"bucket_id": b.ID, "path": snap.Paths[b.ID]})
			}
		}
		return ok(map[string]any{"empty_buckets": empty})

	default:
		return fail(fmt.Sprintf("unknown tool %q", call.Name))
	}
}
