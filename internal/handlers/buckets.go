package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/models"
	"github.com/stashd/stash/internal/request"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/validation"
)

// MinNotesForSubBucket is the rolled-up note count a parent must hold
// before a sub-bucket may be created under it.
const MinNotesForSubBucket = 15

// BucketHandler handles bucket-related requests
type BucketHandler struct {
	buckets  database.BucketRepositoryInterface
	notes    database.NoteRepositoryInterface
	taxonomy *taxonomy.Cache
	logger   *zap.Logger
}

// NewBucketHandler creates a new bucket handler
func NewBucketHandler(buckets database.BucketRepositoryInterface, notes database.NoteRepositoryInterface, tax *taxonomy.Cache, logger *zap.Logger) *BucketHandler {
	return &BucketHandler{buckets: buckets, notes: notes, taxonomy: tax, logger: logger}
}

// RegisterRoutes registers bucket routes on the given router
// The router should already have the /buckets prefix
func (h *BucketHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListBuckets).Methods("GET")
	r.HandleFunc("", h.CreateBucket).Methods("POST")
	r.HandleFunc("/{id}", h.GetBucket).Methods("GET")
	r.HandleFunc("/{id}", h.UpdateBucket).Methods("PATCH")
	r.HandleFunc("/{id}", h.DeleteBucket).Methods("DELETE")
}

// BucketNode is one tree node in the list response.
type BucketNode struct {
	Bucket    *models.Bucket `json:"bucket"`
	Path      string         `json:"path"`
	NoteCount int            `json:"note_count"`
	Children  []*BucketNode  `json:"children,omitempty"`
}

// ListBuckets returns the owner's four taxonomy trees with rolled-up
// note counts.
func (h *BucketHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	if err := h.buckets.EnsureRoots(r.Context(), ownerID); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to initialize buckets")
		return
	}

	snap, err := h.taxonomy.GetTree(r.Context(), ownerID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load buckets")
		return
	}

	roots := make([]*BucketNode, 0, len(snap.Roots))
	for _, n := range snap.Roots {
		roots = append(roots, toBucketNode(snap, n))
	}
	respondJSON(w, http.StatusOK, map[string]any{"roots": roots})
}

func toBucketNode(snap *taxonomy.Snapshot, n *taxonomy.Node) *BucketNode {
	node := &BucketNode{
		Bucket:    n.Bucket,
		Path:      snap.Paths[n.Bucket.ID],
		NoteCount: n.NoteCount,
	}
	for _, c := range n.Children {
		node.Children = append(node.Children, toBucketNode(snap, c))
	}
	return node
}

// CreateBucketRequest represents a create bucket request
type CreateBucketRequest struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Kind        string  `json:"kind" validate:"required,bucket_kind"`
	ParentID    *string `json:"parent_id,omitempty"`
	Description string  `json:"description,omitempty"`
}

// CreateBucket creates a bucket. The kind must match the parent's root
// kind, archive buckets cannot be created directly, and sub-buckets
// require the parent chain to hold enough notes.
func (h *BucketHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return
	}

	var req CreateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	name := validation.SanitizeText(req.Name)
	if name == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "name is required")
		return
	}
	if len([]rune(name)) > models.MaxBucketNameLength {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "name exceeds maximum length")
		return
	}
	if err := validation.ValidateBucketKind(req.Kind); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	kind := models.BucketKind(req.Kind)
	if kind == models.BucketKindArchive {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Archive buckets are created by archiving, not directly")
		return
	}

	ctx := r.Context()
	if err := h.buckets.EnsureRoots(ctx, ownerID); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to initialize buckets")
		return
	}

	snap, err := h.taxonomy.GetTree(ctx, ownerID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load buckets")
		return
	}

	var parent *models.Bucket
	if req.ParentID != nil {
		parentID, err := uuid.Parse(*req.ParentID)
		if err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid parent_id")
			return
		}
		node, exists := snap.ByID[parentID]
		if !exists {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Parent bucket not found")
			return
		}
		parent = node.Bucket
		if parent.Kind != kind {
			respondJSONError(w, http.StatusBadRequest, "Bad Request",
				"Bucket kind must match its parent tree: cannot put a "+string(kind)+" bucket under "+string(parent.Kind))
			return
		}
		if !parent.IsRoot() && node.NoteCount < MinNotesForSubBucket {
			respondJSONError(w, http.StatusBadRequest, "Bad Request",
				"Parent needs at least 15 notes before it can be subdivided")
			return
		}
	} else {
		root, err := h.buckets.GetRootByKind(ctx, ownerID, kind)
		if err != nil {
			respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to resolve root bucket")
			return
		}
		parent = root
	}

	// Reuse an existing same-name sibling instead of duplicating.
	if node := snap.ByID[parent.ID]; node != nil {
		for _, c := range node.Children {
			if strings.EqualFold(c.Bucket.Name, name) {
				respondJSON(w, http.StatusOK, c.Bucket)
				return
			}
		}
	}

	bucket := &models.Bucket{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Kind:        kind,
		ParentID:    &parent.ID,
		Description: validation.SanitizeText(req.Description),
		Active:      true,
	}
	if err := h.buckets.Create(ctx, bucket); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create bucket")
		return
	}
	h.taxonomy.Invalidate(ownerID)

	respondJSON(w, http.StatusCreated, bucket)
}

// GetBucket retrieves one bucket with its path and notes.
func (h *BucketHandler) GetBucket(w http.ResponseWriter, r *http.Request) {
	ownerID, bucket, ok := h.ownedBucket(w, r)
	if !ok {
		return
	}

	path, err := h.taxonomy.GetPath(r.Context(), ownerID, bucket.ID)
	if err != nil {
		path = bucket.Name
	}
	notes, err := h.notes.ListByBucket(r.Context(), ownerID, bucket.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list bucket notes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"bucket": bucket,
		"path":   path,
		"notes":  notes,
	})
}

// UpdateBucketRequest represents a bucket update request
type UpdateBucketRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateBucket renames or redescribes a bucket. Roots cannot be renamed.
func (h *BucketHandler) UpdateBucket(w http.ResponseWriter, r *http.Request) {
	ownerID, bucket, ok := h.ownedBucket(w, r)
	if !ok {
		return
	}

	var req UpdateBucketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid JSON body")
		return
	}

	if req.Name != nil {
		if bucket.IsRoot() {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Root buckets cannot be renamed")
			return
		}
		name := validation.SanitizeText(*req.Name)
		if name == "" || len([]rune(name)) > models.MaxBucketNameLength {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid bucket name")
			return
		}
		bucket.Name = name
	}
	if req.Description != nil {
		bucket.Description = validation.SanitizeText(*req.Description)
	}

	if err := h.buckets.Update(r.Context(), bucket); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update bucket")
		return
	}
	h.taxonomy.Invalidate(ownerID)

	respondJSON(w, http.StatusOK, bucket)
}

// DeleteBucket removes a bucket and its descendants; their notes return
// to the inbox. Roots cannot be deleted.
func (h *BucketHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	ownerID, bucket, ok := h.ownedBucket(w, r)
	if !ok {
		return
	}

	if bucket.IsRoot() {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Root buckets cannot be deleted")
		return
	}

	moved, err := h.buckets.DeleteSubtree(r.Context(), ownerID, bucket.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete bucket")
		return
	}
	h.taxonomy.Invalidate(ownerID)

	respondJSON(w, http.StatusOK, map[string]any{
		"deleted":                 bucket.ID,
		"notes_returned_to_inbox": moved,
	})
}

// ownedBucket loads the path bucket and enforces ownership.
func (h *BucketHandler) ownedBucket(w http.ResponseWriter, r *http.Request) (uuid.UUID, *models.Bucket, bool) {
	ownerID, ok := request.OwnerFromContext(r)
	if !ok {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Owner not found in context")
		return uuid.Nil, nil, false
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid bucket ID")
		return uuid.Nil, nil, false
	}

	bucket, err := h.buckets.GetByID(r.Context(), id)
	if err != nil || bucket.OwnerID != ownerID {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Bucket not found")
		return uuid.Nil, nil, false
	}

	return ownerID, bucket, true
}
