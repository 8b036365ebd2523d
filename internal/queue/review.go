package queue

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/dedup"
	"github.com/fyrsmithlabs/recalld/internal/learning"
)

// ErrAlreadyReviewed is returned when approving or rejecting a pending
// learning that is no longer in the pending state.
var ErrAlreadyReviewed = errors.New("pending learning already reviewed")

// ListPending returns a project's staged learnings awaiting review.
func (d *Drainer) ListPending(ctx context.Context, projectID string) ([]*learning.Pending, error) {
	return d.store.ListPending(ctx, projectID, learning.PendingStatusPending)
}

// ApprovePending promotes a staged learning into the pool. Promotion
// routes through the deduplicator, so approving content that arrived
// through another path since staging collapses into the existing item.
func (d *Drainer) ApprovePending(ctx context.Context, id string) (*dedup.Result, error) {
	p, err := d.store.GetPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load pending learning: %w", err)
	}
	if p.Status != learning.PendingStatusPending {
		return nil, ErrAlreadyReviewed
	}

	l := p.Learning
	res, err := d.dedup.Store(ctx, &l)
	if err != nil {
		return nil, fmt.Errorf("promote pending learning: %w", err)
	}
	if err := d.store.UpdatePendingStatus(ctx, id, learning.PendingStatusApproved); err != nil {
		return nil, fmt.Errorf("mark pending approved: %w", err)
	}

	d.logger.Info("approved pending learning",
		zap.String("pending_id", id),
		zap.String("project_id", p.ProjectID),
		zap.String("outcome", string(res.Outcome)))
	return res, nil
}

// RejectPending discards a staged learning. The row is kept for audit;
// only its status changes.
func (d *Drainer) RejectPending(ctx context.Context, id string) error {
	p, err := d.store.GetPending(ctx, id)
	if err != nil {
		return fmt.Errorf("load pending learning: %w", err)
	}
	if p.Status != learning.PendingStatusPending {
		return ErrAlreadyReviewed
	}
	if err := d.store.UpdatePendingStatus(ctx, id, learning.PendingStatusRejected); err != nil {
		return fmt.Errorf("mark pending rejected: %w", err)
	}

	d.logger.Info("rejected pending learning",
		zap.String("pending_id", id),
		zap.String("project_id", p.ProjectID))
	return nil
}
