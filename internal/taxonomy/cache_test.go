package taxonomy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/testutil"
)

func bucketFixture(ownerID uuid.UUID, name string, parent *models.Bucket) *models.Bucket {
	b := &models.Bucket{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Name:    name,
		Kind:    models.BucketKindProject,
	}
	if parent != nil {
		pid := parent.ID
		b.ParentID = &pid
	}
	return b
}

func TestCache_GetPath_JoinsSegments(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	a := bucketFixture(ownerID, "Projects", nil)
	b := bucketFixture(ownerID, "Go", a)
	c := bucketFixture(ownerID, "Generics", b)

	cache := NewCache(&testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			return []*models.Bucket{a, b, c}, nil
		},
	}, &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{}, nil
		},
	}, time.Minute)

	path, err := cache.GetPath(context.Background(), ownerID, c.ID)
	if err != nil {
		t.Fatalf("GetPath() error = %v", err)
	}
	if path != "Projects/Go/Generics" {
		t.Errorf("GetPath() = %q, want %q", path, "Projects/Go/Generics")
	}

	rootPath, err := cache.GetPath(context.Background(), ownerID, a.ID)
	if err != nil {
		t.Fatalf("GetPath() error = %v", err)
	}
	if rootPath != "Projects" {
		t.Errorf("GetPath() = %q, want %q", rootPath, "Projects")
	}
}

func TestCache_NoteCountsRollUpToAncestors(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	root := bucketFixture(ownerID, "Projects", nil)
	child := bucketFixture(ownerID, "Go", root)
	leaf := bucketFixture(ownerID, "Generics", child)
	sibling := bucketFixture(ownerID, "Rust", root)

	cache := NewCache(&testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			return []*models.Bucket{root, child, leaf, sibling}, nil
		},
	}, &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{leaf.ID: 3, child.ID: 2, sibling.ID: 1}, nil
		},
	}, time.Minute)

	snap, err := cache.GetTree(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}

	tests := []struct {
		name   string
		bucket *models.Bucket
		want   int
	}{
		{name: "leaf counts itself", bucket: leaf, want: 3},
		{name: "child includes leaf", bucket: child, want: 5},
		{name: "root includes all descendants", bucket: root, want: 6},
		{name: "sibling unaffected", bucket: sibling, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := snap.ByID[tt.bucket.ID]
			if node == nil {
				t.Fatalf("bucket %s missing from snapshot", tt.bucket.Name)
			}
			if node.NoteCount != tt.want {
				t.Errorf("NoteCount = %d, want %d", node.NoteCount, tt.want)
			}
		})
	}
}

func TestCache_InvalidateForcesRebuild(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	first := []*models.Bucket{bucketFixture(ownerID, "Projects", nil)}
	second := append([]*models.Bucket{}, first...)
	second = append(second, bucketFixture(ownerID, "Areas", nil))

	listings := 0
	cache := NewCache(&testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			listings++
			if listings == 1 {
				return first, nil
			}
			return second, nil
		},
	}, &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{}, nil
		},
	}, time.Minute)

	snap, err := cache.GetTree(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if len(snap.Buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(snap.Buckets))
	}

	// A second read without invalidation serves the cached snapshot.
	if _, err := cache.GetTree(context.Background(), ownerID); err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if listings != 1 {
		t.Errorf("expected cached read, repository listed %d times", listings)
	}

	cache.Invalidate(ownerID)

	snap, err = cache.GetTree(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetTree() after invalidate error = %v", err)
	}
	if len(snap.Buckets) != 2 {
		t.Errorf("expected rebuilt snapshot with 2 buckets, got %d", len(snap.Buckets))
	}
}

func TestCache_OrphanedParentTreatedAsRoot(t *testing.T) {
	t.Parallel()

	ownerID := uuid.New()
	orphan := bucketFixture(ownerID, "Lost", nil)
	missing := uuid.New()
	orphan.ParentID = &missing

	cache := NewCache(&testutil.MockBucketRepo{
		ListByOwnerFunc: func(ctx context.Context, id uuid.UUID) ([]*models.Bucket, error) {
			return []*models.Bucket{orphan}, nil
		},
	}, &testutil.MockNoteRepo{
		NoteCountsFunc: func(ctx context.Context, id uuid.UUID) (map[uuid.UUID]int, error) {
			return map[uuid.UUID]int{}, nil
		},
	}, time.Minute)

	snap, err := cache.GetTree(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("GetTree() error = %v", err)
	}
	if len(snap.Roots) != 1 {
		t.Fatalf("expected orphan promoted to root, got %d roots", len(snap.Roots))
	}
	if snap.Paths[orphan.ID] != "Lost" {
		t.Errorf("expected path %q, got %q", "Lost", snap.Paths[orphan.ID])
	}
}
