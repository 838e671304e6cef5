package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJob_ShouldProcess(t *testing.T) {
	t.Parallel()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name      string
		notBefore *time.Time
		notAfter  *time.Time
		want      bool
	}{
		{name: "no bounds", want: true},
		{name: "not yet due", notBefore: &future, want: false},
		{name: "already due", notBefore: &past, want: true},
		{name: "expired", notAfter: &past, want: false},
		{name: "within window", notBefore: &past, notAfter: &future, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob(JobTypeNoteEnrichment, uuid.New(), nil)
			job.NotBefore = tt.notBefore
			job.NotAfter = tt.notAfter
			if got := job.ShouldProcess(); got != tt.want {
				t.Errorf("ShouldProcess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJob_IsExpired(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeMaintenance, uuid.New(), nil)
	if job.IsExpired() {
		t.Error("job without NotAfter should never expire")
	}

	past := time.Now().Add(-time.Minute)
	job.NotAfter = &past
	if !job.IsExpired() {
		t.Error("job past NotAfter should be expired")
	}
}

func TestJob_RetryBudget(t *testing.T) {
	t.Parallel()

	job := NewJob(JobTypeNoteEnrichment, uuid.New(), nil)
	for i := 0; i < job.MaxRetries; i++ {
		if !job.CanRetry() {
			t.Fatalf("CanRetry() = false after %d retries, budget is %d", i, job.MaxRetries)
		}
		job.IncrementRetry()
	}
	if job.CanRetry() {
		t.Error("CanRetry() = true after budget exhausted")
	}
}
