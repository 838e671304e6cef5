package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stashd/stash/internal/config"
	"github.com/stashd/stash/internal/database"
)

// NewSuggestionsCmd creates the suggestions command
func NewSuggestionsCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "suggestions",
		Short: "List pending maintenance suggestions for an owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a valid UUID: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			repo := database.NewSuggestionRepository(db)
			pending, err := repo.ListPending(context.Background(), ownerID)
			if err != nil {
				return fmt.Errorf("failed to list suggestions: %w", err)
			}

			if len(pending) == 0 {
				fmt.Println("No pending suggestions")
				return nil
			}

			fmt.Printf("Pending suggestions for %s:\n", ownerID)
			for _, s := range pending {
				fmt.Printf("  - %s  kind=%s  created=%s\n", s.ID, s.Kind, s.CreatedAt.Format("2006-01-02 15:04"))
				if s.Payload.Reason != "" {
					fmt.Printf("    %s\n", s.Payload.Reason)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner UUID (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
