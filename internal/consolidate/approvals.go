package consolidate

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-fisheries/gannet/internal/domain"
)

// ApprovalChecker answers "is this document pre-approved" with a cache in
// front of the repository. A lookup failure is logged and treated as not
// pre-approved; pre-approval is an exemption, so failing closed only makes
// a certificate count toward overuse.
type ApprovalChecker struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewApprovalChecker creates a checker. cache may be nil, in which case
// every lookup goes to the repository.
func NewApprovalChecker(repo domain.Repository, cache domain.Cache, ttl time.Duration) *ApprovalChecker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ApprovalChecker{repo: repo, cache: cache, ttl: ttl}
}

// IsPreApproved reports whether a certificate's usage is exempt from the
// cross-certificate overuse count.
func (a *ApprovalChecker) IsPreApproved(ctx context.Context, documentNumber string) bool {
	key := "preapproval:" + documentNumber

	if a.cache != nil {
		if val, err := a.cache.Get(ctx, key); err == nil && val != nil {
			return string(val) == "1"
		}
	}

	approved, err := a.repo.IsDocumentPreApproved(ctx, documentNumber)
	if err != nil {
		slog.Warn("pre-approval lookup failed, treating as not pre-approved",
			"document_number", documentNumber,
			"error", err,
		)
		return false
	}

	if a.cache != nil {
		val := []byte("0")
		if approved {
			val = []byte("1")
		}
		if err := a.cache.Set(ctx, key, val, a.ttl); err != nil {
			slog.Debug("failed to cache pre-approval", "document_number", documentNumber, "error", err)
		}
	}

	return approved
}
