package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/gubs/internal/domain/fault"
)

// LeaderboardDependencies defines the interface for leaderboard operations
type LeaderboardDependencies interface {
	TopN(ctx context.Context, n int) ([]Entry, error)
}

// LeaderboardHandler handles leaderboard requests
type LeaderboardHandler struct {
	deps     LeaderboardDependencies
	maxLimit int
}

// NewLeaderboardHandler creates a new leaderboard handler
func NewLeaderboardHandler(deps LeaderboardDependencies, maxLimit int) *LeaderboardHandler {
	return &LeaderboardHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetLeaderboard handles GET /leaderboard?limit=N requests. A missing
// limit selects the default page size.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "topN"
	n := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > h.maxLimit {
			writeFault(w, fault.Wrap(op, fault.ErrInvalidArgument,
				fmt.Sprintf("Limit must be between 1 and %d", h.maxLimit), ErrBadRequest))
			return
		}
	}
	entries, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
