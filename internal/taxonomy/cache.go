// Package taxonomy maintains a per-owner cached view of the bucket
// tree: parent-linked nodes with rolled-up note counts and a flattened
// id-to-path index. Entries expire after a fixed window and are lazily
// rebuilt; every structural mutation must invalidate the owner.
package taxonomy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stashd/stash/internal/cache"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
)

const (
	// DefaultTTL is how long a cached tree stays valid. Writes from
	// outside this process are only visible after expiry.
	DefaultTTL = 5 * time.Minute

	// maxTrackedOwners bounds the cache.
	maxTrackedOwners = 1000
)

// Node is one bucket in the cached tree. NoteCount includes the notes
// of every descendant.
type Node struct {
	Bucket    *models.Bucket
	Children  []*Node
	NoteCount int
}

// Snapshot is the cached view of one owner's taxonomy.
type Snapshot struct {
	Buckets   []*models.Bucket
	Roots     []*Node
	ByID      map[uuid.UUID]*Node
	Paths     map[uuid.UUID]string
	FetchedAt time.Time
}

// Cache lazily builds and serves taxonomy snapshots.
type Cache struct {
	buckets database.BucketRepositoryInterface
	notes   database.NoteRepositoryInterface
	entries *cache.BoundedMap[uuid.UUID, *Snapshot]
}

// NewCache creates a taxonomy cache. ttl <= 0 selects the default.
func NewCache(buckets database.BucketRepositoryInterface, notes database.NoteRepositoryInterface, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		buckets: buckets,
		notes:   notes,
		entries: cache.NewBoundedMap[uuid.UUID, *Snapshot](maxTrackedOwners, ttl),
	}
}

// GetTree returns the owner's taxonomy snapshot, rebuilding it when
// missing or expired.
func (c *Cache) GetTree(ctx context.Context, ownerID uuid.UUID) (*Snapshot, error) {
	if snap, ok := c.entries.Get(ownerID); ok {
		return snap, nil
	}

	snap, err := c.build(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	c.entries.Set(ownerID, snap)
	return snap, nil
}

// GetPath returns the bucket's path from its root, segments joined by
// "/" (e.g. "Projects/Go/Generics").
func (c *Cache) GetPath(ctx context.Context, ownerID, bucketID uuid.UUID) (string, error) {
	snap, err := c.GetTree(ctx, ownerID)
	if err != nil {
		return "", err
	}
	path, ok := snap.Paths[bucketID]
	if !ok {
		return "", fmt.Errorf("bucket %s not in taxonomy", bucketID)
	}
	return path, nil
}

// GetAllBuckets returns the owner's full bucket list from the cache.
func (c *Cache) GetAllBuckets(ctx context.Context, ownerID uuid.UUID) ([]*models.Bucket, error) {
	snap, err := c.GetTree(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return snap.Buckets, nil
}

// Invalidate drops the owner's cached snapshot. Must be called by
// every bucket-structural mutation before it returns.
func (c *Cache) Invalidate(ownerID uuid.UUID) {
	c.entries.Delete(ownerID)
}

// build performs one full bucket listing plus one note-count
// aggregation and assembles the snapshot.
func (c *Cache) build(ctx context.Context, ownerID uuid.UUID) (*Snapshot, error) {
	buckets, err := c.buckets.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	counts, err := c.notes.NoteCounts(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate note counts: %w", err)
	}

	snap := &Snapshot{
		Buckets:   buckets,
		ByID:      make(map[uuid.UUID]*Node, len(buckets)),
		Paths:     make(map[uuid.UUID]string, len(buckets)),
		FetchedAt: time.Now(),
	}

	for _, b := range buckets {
		snap.ByID[b.ID] = &Node{Bucket: b}
	}
	for _, b := range buckets {
		node := snap.ByID[b.ID]
		if b.ParentID == nil {
			snap.Roots = append(snap.Roots, node)
			continue
		}
		if parent, ok := snap.ByID[*b.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			// Orphaned parent pointer; treat as a root so the bucket
			// stays reachable.
			snap.Roots = append(snap.Roots, node)
		}
	}

	// Bottom-up rollup: push each bucket's direct count to itself and
	// every ancestor.
	for id, count := range counts {
		node, ok := snap.ByID[id]
		if !ok {
			continue
		}
		for node != nil {
			node.NoteCount += count
			node = c.parentOf(snap, node)
		}
	}

	for _, b := range buckets {
		snap.Paths[b.ID] = buildPath(snap, b)
	}

	return snap, nil
}

func (c *Cache) parentOf(snap *Snapshot, node *Node) *Node {
	if node.Bucket.ParentID == nil {
		return nil
	}
	return snap.ByID[*node.Bucket.ParentID]
}

func buildPath(snap *Snapshot, b *models.Bucket) string {
	segments := []string{b.Name}
	seen := map[uuid.UUID]bool{b.ID: true}
	cur := b
	for cur.ParentID != nil {
		parent, ok := snap.ByID[*cur.ParentID]
		if !ok || seen[parent.Bucket.ID] {
			break
		}
		seen[parent.Bucket.ID] = true
		segments = append([]string{parent.Bucket.Name}, segments...)
		cur = parent.Bucket
	}
	return strings.Join(segments, "/")
}
