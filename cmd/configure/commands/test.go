package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/config"
	"github.com/stashd/stash/internal/services/ai"
)

// NewTestAICmd creates the test-ai command
func NewTestAICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-ai",
		Short: "Test AI provider connectivity",
		Long:  "Sends a small completion and embedding request to verify the configured AI provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.OpenAIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is not configured")
			}

			model := ai.NewOpenAIProviderWithLogger(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, cfg.EmbeddingModel, zap.NewNop(), false)

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			fmt.Printf("Testing completion (model: %s)...\n", cfg.AIModel)
			reply, err := model.Complete(ctx, "You are a connectivity check.", "Reply with the single word: ok")
			if err != nil {
				return fmt.Errorf("completion failed: %w", err)
			}
			fmt.Printf("✓ Completion succeeded: %q\n", reply)

			fmt.Printf("Testing embedding (model: %s)...\n", cfg.EmbeddingModel)
			vec, err := model.Embed(ctx, "connectivity check")
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			fmt.Printf("✓ Embedding succeeded: %d dimensions\n", len(vec))

			return nil
		},
	}
}
