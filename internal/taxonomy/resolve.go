package taxonomy

import (
	"fmt"
	"strings"

	"github.com/stashd/stash/internal/models"
)

// PathDelimiter separates segments in user-supplied bucket paths
// (e.g. "Projects > Go > Generics").
const PathDelimiter = ">"

// Resolve finds a bucket by display name or ">"-delimited path within
// a snapshot. Exact (case-insensitive) name matches win when unique;
// otherwise the last path segment selects candidates and each
// candidate's ancestor chain is walked against the remaining segments
// to disambiguate.
func Resolve(snap *Snapshot, target string) (*models.Bucket, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("empty bucket name")
	}

	segments := splitPath(target)

	if len(segments) == 1 {
		matches := byName(snap, segments[0])
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			return nil, fmt.Errorf("bucket name %q is ambiguous; use a full path", segments[0])
		}
		return nil, fmt.Errorf("no bucket named %q", segments[0])
	}

	last := segments[len(segments)-1]
	ancestors := segments[:len(segments)-1]

	var resolved *models.Bucket
	for _, candidate := range byName(snap, last) {
		if chainMatches(snap, candidate, ancestors) {
			if resolved != nil {
				return nil, fmt.Errorf("path %q matches multiple buckets", target)
			}
			resolved = candidate
		}
	}
	if resolved == nil {
		return nil, fmt.Errorf("no bucket matches path %q", target)
	}
	return resolved, nil
}

func splitPath(target string) []string {
	parts := strings.Split(target, PathDelimiter)
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func byName(snap *Snapshot, name string) []*models.Bucket {
	var matches []*models.Bucket
	for _, b := range snap.Buckets {
		if strings.EqualFold(b.Name, name) {
			matches = append(matches, b)
		}
	}
	return matches
}

// chainMatches walks the candidate's ancestor chain toward the root,
// consuming the given segments from the right. Segments may skip
// levels: "Projects > Generics" matches Projects/Go/Generics.
func chainMatches(snap *Snapshot, b *models.Bucket, ancestors []string) bool {
	i := len(ancestors) - 1
	cur := b
	for cur.ParentID != nil && i >= 0 {
		parent, ok := snap.ByID[*cur.ParentID]
		if !ok {
			break
		}
		if strings.EqualFold(parent.Bucket.Name, ancestors[i]) {
			i--
		}
		cur = parent.Bucket
	}
	return i < 0
}
