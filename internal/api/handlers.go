package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/publish-dispatcher/internal/models"
	"github.com/publish-dispatcher/internal/storage"
	"github.com/publish-dispatcher/internal/types"
)

// CreatePostRequest is the request body for scheduling a post.
type CreatePostRequest struct {
	OrgID       string    `json:"orgId"`
	Content     string    `json:"content"`
	Platforms   []string  `json:"platforms"`
	MediaURLs   []string  `json:"mediaUrls,omitempty"`
	Hashtags    []string  `json:"hashtags,omitempty"`
	Mentions    []string  `json:"mentions,omitempty"`
	Location    *string   `json:"location,omitempty"`
	ScheduledAt time.Time `json:"scheduledAt"`
	MaxAttempts int       `json:"maxAttempts,omitempty"`
}

// ownerID extracts the authenticated user from the request. Authentication
// itself is handled upstream by the API gateway.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// handleCreatePost schedules a new post.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return
	}

	var req CreatePostRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	platforms := make([]types.Platform, len(req.Platforms))
	for i, platform := range req.Platforms {
		platforms[i] = types.Platform(platform)
	}

	post := &models.ScheduledPost{
		JobID:       uuid.New().String(),
		OwnerID:     owner,
		OrgID:       req.OrgID,
		Content:     req.Content,
		Platforms:   platforms,
		MediaURLs:   req.MediaURLs,
		Hashtags:    req.Hashtags,
		Mentions:    req.Mentions,
		Location:    req.Location,
		ScheduledAt: req.ScheduledAt,
		Status:      types.StatusPending,
		MaxAttempts: req.MaxAttempts,
	}
	if post.ScheduledAt.IsZero() {
		post.ScheduledAt = time.Now()
	}

	if err := s.jobs.Create(r.Context(), post); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	respondJSON(w, http.StatusCreated, post)
}

// handleGetPost retrieves one scheduled post.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	jobID := mux.Vars(r)["id"]

	post, err := s.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Scheduled post not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load scheduled post", nil)
		return
	}

	if owner != "" && post.OwnerID != owner {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Scheduled post not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, post)
}

// handleListPosts lists the caller's scheduled posts.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 500", nil)
			return
		}
		limit = parsed
	}

	posts, err := s.jobs.ListByOwner(r.Context(), owner, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list scheduled posts", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"posts": posts,
		"count": len(posts),
	})
}

// handleCancelPost cancels a pending post. Posts already picked up or settled
// cannot be cancelled.
func (s *Server) handleCancelPost(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header is required", nil)
		return
	}
	jobID := mux.Vars(r)["id"]

	err := s.jobs.Cancel(r.Context(), jobID, owner)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrJobNotFound):
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Scheduled post not found", nil)
		case errors.Is(err, storage.ErrInvalidState):
			respondError(w, http.StatusConflict, ErrCodeConflict, "Post is no longer pending and cannot be cancelled", nil)
		default:
			respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to cancel scheduled post", nil)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"jobId":  jobID,
		"status": string(types.StatusCancelled),
	})
}

// handleGetResults retrieves the per-attempt audit records for a post.
func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	jobID := mux.Vars(r)["id"]

	post, err := s.jobs.GetByID(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "Scheduled post not found", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load scheduled post", nil)
		return
	}
	if owner != "" && post.OwnerID != owner {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Scheduled post not found", nil)
		return
	}

	records, err := s.results.ListByJob(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load publish results", nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobId":   jobID,
		"results": records,
		"count":   len(records),
	})
}

// handleCircuitStats reports every circuit breaker's state.
func (s *Server) handleCircuitStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"circuits": s.breakers.AllStats(),
	})
}

// handleRateLimitStats reports the tracked rate limit ledger.
func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ratelimits": s.tracker.AllStats(),
	})
}

// handlePollerStats reports dispatch loop activity.
func (s *Server) handlePollerStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.poller.GetStats())
}
