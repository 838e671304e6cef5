package database

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/models"
)

func bucketWithParent(parent *uuid.UUID) *models.Bucket {
	return &models.Bucket{ID: uuid.New(), ParentID: parent}
}

func TestCollectDescendants(t *testing.T) {
	t.Parallel()

	root := bucketWithParent(nil)
	childA := bucketWithParent(&root.ID)
	childB := bucketWithParent(&root.ID)
	grandchild := bucketWithParent(&childA.ID)
	unrelated := bucketWithParent(nil)

	buckets := []*models.Bucket{root, childA, childB, grandchild, unrelated}

	ids := CollectDescendants(buckets, root.ID)

	want := map[uuid.UUID]bool{
		root.ID:       true,
		childA.ID:     true,
		childB.ID:     true,
		grandchild.ID: true,
	}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %s in descendants", id)
		}
	}
	if ids[0] != root.ID {
		t.Errorf("expected BFS to start at the root, got %s", ids[0])
	}
}

func TestCollectDescendants_LeafOnly(t *testing.T) {
	t.Parallel()

	root := bucketWithParent(nil)
	leaf := bucketWithParent(&root.ID)
	buckets := []*models.Bucket{root, leaf}

	ids := CollectDescendants(buckets, leaf.ID)

	if len(ids) != 1 || ids[0] != leaf.ID {
		t.Errorf("expected only the leaf itself, got %v", ids)
	}
}

func TestCollectDescendants_BreadthFirstOrder(t *testing.T) {
	t.Parallel()

	root := bucketWithParent(nil)
	child := bucketWithParent(&root.ID)
	grandchild := bucketWithParent(&child.ID)
	buckets := []*models.Bucket{grandchild, child, root}

	ids := CollectDescendants(buckets, root.ID)

	if len(ids) != 3 {
		t.Fatalf("expected 3 ids, got %d", len(ids))
	}
	if ids[0] != root.ID || ids[1] != child.ID || ids[2] != grandchild.ID {
		t.Errorf("expected level order [root child grandchild], got %v", ids)
	}
}
