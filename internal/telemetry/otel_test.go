package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		endpoint    string
		wantErr     bool
	}{
		{
			name:        "valid configuration",
			serviceName: "stash-test",
			endpoint:    "localhost:4318",
			wantErr:     false,
		},
		{
			name:        "empty service name",
			serviceName: "",
			endpoint:    "localhost:4318",
			wantErr:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			shutdown, err := Init(ctx, tt.serviceName, tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Init() error = %v, wantErr %v", err, tt.wantErr)
			}
			if shutdown == nil {
				t.Fatal("Init() returned nil shutdown function")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := shutdown(shutdownCtx); err != nil {
				t.Errorf("shutdown error = %v", err)
			}
		})
	}
}

func TestInit_EmptyEndpointDisablesTracing(t *testing.T) {
	shutdown, err := Init(context.Background(), "stash-test", "")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown should not error, got %v", err)
	}
}
