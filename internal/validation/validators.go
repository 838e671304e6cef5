package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/stashd/stash/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("bucket_kind", validateBucketKind); err != nil {
		panic(fmt.Sprintf("failed to register bucket_kind validator: %v", err))
	}
	if err := Validate.RegisterValidation("note_source", validateNoteSource); err != nil {
		panic(fmt.Sprintf("failed to register note_source validator: %v", err))
	}
	if err := Validate.RegisterValidation("suggestion_kind", validateSuggestionKind); err != nil {
		panic(fmt.Sprintf("failed to register suggestion_kind validator: %v", err))
	}
}

// validateBucketKind validates that a string is a valid BucketKind enum value
func validateBucketKind(fl validator.FieldLevel) bool {
	return models.ValidKind(models.BucketKind(fl.Field().String()))
}

// validateNoteSource validates that a string is a valid NoteSource enum value
func validateNoteSource(fl validator.FieldLevel) bool {
	return models.ValidSource(models.NoteSource(fl.Field().String()))
}

// validateSuggestionKind validates that a string is a valid SuggestionKind enum value
func validateSuggestionKind(fl validator.FieldLevel) bool {
	return models.ValidSuggestionKind(models.SuggestionKind(fl.Field().String()))
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateBucketKind validates a BucketKind string value
func ValidateBucketKind(value string) error {
	if !models.ValidKind(models.BucketKind(value)) {
		return fmt.Errorf("invalid kind: %s (must be 'project', 'area', 'resource', or 'archive')", value)
	}
	return nil
}

// ValidateNoteSource validates a NoteSource string value
func ValidateNoteSource(value string) error {
	if !models.ValidSource(models.NoteSource(value)) {
		return fmt.Errorf("invalid source: %s (must be 'text', 'article', 'tweet', 'image', 'audio', or 'video')", value)
	}
	return nil
}

// ValidateSuggestionPayload checks the per-kind required field subset of
// a suggestion payload before persistence and before execution.
func ValidateSuggestionPayload(kind models.SuggestionKind, p *models.SuggestionPayload) error {
	if !models.ValidSuggestionKind(kind) {
		return fmt.Errorf("unknown suggestion kind: %s", kind)
	}
	switch kind {
	case models.SuggestionSplitBucket:
		if p.BucketID == nil {
			return fmt.Errorf("split_bucket requires bucket_id")
		}
		if len(p.Splits) < 2 {
			return fmt.Errorf("split_bucket requires at least 2 groups")
		}
		for _, g := range p.Splits {
			if strings.TrimSpace(g.Name) == "" {
				return fmt.Errorf("split group name is required")
			}
			if len(g.NoteIDs) < 2 {
				return fmt.Errorf("split group %q needs at least 2 notes", g.Name)
			}
		}
	case models.SuggestionMergeBuckets:
		if p.BucketID == nil || p.TargetID == nil {
			return fmt.Errorf("merge_buckets requires bucket_id and target_id")
		}
		if *p.BucketID == *p.TargetID {
			return fmt.Errorf("merge_buckets endpoints must differ")
		}
	case models.SuggestionRenameBucket:
		if p.BucketID == nil {
			return fmt.Errorf("rename_bucket requires bucket_id")
		}
		if strings.TrimSpace(p.NewName) == "" {
			return fmt.Errorf("rename_bucket requires new_name")
		}
		if len(p.NewName) > models.MaxBucketNameLength {
			return fmt.Errorf("new_name exceeds %d characters", models.MaxBucketNameLength)
		}
	case models.SuggestionDeleteBucket, models.SuggestionArchiveProject:
		if p.BucketID == nil {
			return fmt.Errorf("%s requires bucket_id", kind)
		}
	case models.SuggestionReclassifyNote:
		if len(p.NoteIDs) == 0 {
			return fmt.Errorf("reclassify_note requires note_ids")
		}
		if p.BucketID == nil {
			return fmt.Errorf("reclassify_note requires a target bucket_id")
		}
	case models.SuggestionCreateBucket, models.SuggestionCreateSubBucket:
		if strings.TrimSpace(p.BucketName) == "" {
			return fmt.Errorf("%s requires bucket_name", kind)
		}
		if !models.ValidKind(p.ParentKind) {
			return fmt.Errorf("%s requires a valid parent_kind", kind)
		}
	}
	return nil
}
