package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stashd/stash/internal/config"
	"github.com/stashd/stash/internal/queue"
)

// NewMaintenanceCmd creates the maintenance command
func NewMaintenanceCmd() *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Trigger a maintenance run for an owner",
		Long:  "Enqueues a full maintenance run (bloat, staleness, reorganization checks) regardless of the note-count watermark",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := uuid.Parse(owner)
			if err != nil {
				return fmt.Errorf("--owner must be a valid UUID: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := jobQueue.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()

			publisher := queue.NewPublisher(jobQueue)
			if err := publisher.ScheduleMaintenance(context.Background(), ownerID); err != nil {
				return fmt.Errorf("failed to enqueue maintenance job: %w", err)
			}

			fmt.Printf("Maintenance run enqueued for %s\n", ownerID)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner UUID (required)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}
