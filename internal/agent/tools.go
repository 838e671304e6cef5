// Package agent drives the multi-turn tool-calling loop and the
// dispatcher that executes the model's tool invocations.
package agent

import "github.com/stashd/stash/internal/services/ai"

// ToolName identifies a dispatchable tool. Dispatch is a closed
// mapping; unknown names produce an error result, never a panic.
type ToolName string

const (
	ToolSaveNote           ToolName = "save_note"
	ToolSearchNotes        ToolName = "search_notes"
	ToolShowInbox          ToolName = "show_inbox"
	ToolCreateBucket       ToolName = "create_bucket"
	ToolMoveNote           ToolName = "move_note"
	ToolRenameBucket       ToolName = "rename_bucket"
	ToolDeleteBucket       ToolName = "delete_bucket"
	ToolFinalizeOnboarding ToolName = "finalize_onboarding"
)

// Catalog returns the tool specs advertised to the language model.
func Catalog() []ai.ToolSpec {
	return []ai.ToolSpec{
		{
			Name:        string(ToolSaveNote),
			Description: "Save a piece of content the user shared as a note. The note always lands in the inbox with a filing suggestion; it is never filed directly.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"content": map[string]any{
						"type":        "string",
						"description": "The raw content to save.",
					},
					"source_type": map[string]any{
						"type":        "string",
						"description": "Kind of content: text, article, tweet, image, audio or video. Defaults to text.",
					},
				},
				"required": []string{"content"},
			},
		},
		{
			Name:        string(ToolSearchNotes),
			Description: "Search the user's notes by meaning and keywords. Returns the best matches with their bucket paths.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "What to search for.",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        string(ToolShowInbox),
			Description: "List the notes waiting in the inbox, newest first, with any filing suggestions.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        string(ToolCreateBucket),
			Description: "Create a new bucket in the user's taxonomy. Sub-buckets require the parent chain to already hold at least 15 notes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Display name for the bucket.",
					},
					"type": map[string]any{
						"type":        "string",
						"description": "Bucket kind: project, area or resource.",
					},
					"parent_name": map[string]any{
						"type":        "string",
						"description": "Optional parent bucket name or '>'-delimited path. Defaults to the root for the kind.",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Optional one-line description.",
					},
				},
				"required": []string{"name", "type"},
			},
		},
		{
			Name:        string(ToolMoveNote),
			Description: "Move a note into a bucket and mark its placement as confirmed by the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"note_id": map[string]any{
						"type":        "string",
						"description": "Id of the note to move.",
					},
					"target_path": map[string]any{
						"type":        "string",
						"description": "Bucket name or '>'-delimited path, e.g. 'Projects > Go'.",
					},
				},
				"required": []string{"note_id", "target_path"},
			},
		},
		{
			Name:        string(ToolRenameBucket),
			Description: "Rename a bucket. Root buckets cannot be renamed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_name": map[string]any{
						"type":        "string",
						"description": "Current name or path of the bucket.",
					},
					"new_name": map[string]any{
						"type":        "string",
						"description": "New display name.",
					},
				},
				"required": []string{"bucket_name", "new_name"},
			},
		},
		{
			Name:        string(ToolDeleteBucket),
			Description: "Delete a bucket and its sub-buckets. The notes inside fall back to the inbox. Root buckets cannot be deleted.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"bucket_name": map[string]any{
						"type":        "string",
						"description": "Name or path of the bucket to delete.",
					},
				},
				"required": []string{"bucket_name"},
			},
		},
		{
			Name:        string(ToolFinalizeOnboarding),
			Description: "Finish onboarding by creating the user's starting buckets in one step.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"buckets": map[string]any{
						"type":        "array",
						"description": "Buckets to create.",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name": map[string]any{"type": "string"},
								"type": map[string]any{
									"type":        "string",
									"description": "project, area or resource",
								},
								"description": map[string]any{"type": "string"},
							},
							"required": []string{"name", "type"},
						},
					},
				},
				"required": []string{"buckets"},
			},
		},
	}
}
