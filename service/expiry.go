package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oriser/tramper/request"
)

// ExpiryWorker expires stale negotiations every sweep interval until ctx is done.
// It does nothing when expiry is disabled.
func (h *Service) ExpiryWorker(ctx context.Context) {
	if h.cfg.RequestExpiryAfter <= 0 {
		return
	}

	ticker := time.NewTicker(h.cfg.ExpirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Finishing expiry worker due to context cancellation")
			return
		case <-ticker.C:
			expired, err := h.ExpireStale(ctx)
			if err != nil {
				log.Printf("Error expiring stale requests: %v\n", err)
				continue
			}
			if expired > 0 {
				log.Printf("Expired %d stale requests\n", expired)
			}
		}
	}
}

// ExpireStale moves pending and countered requests untouched for longer than the
// expiry period to expired. Each request is expired in its own transaction, so a
// request that moved on in the meantime is left alone.
func (h *Service) ExpireStale(ctx context.Context) (int, error) {
	if h.cfg.RequestExpiryAfter <= 0 {
		return 0, nil
	}

	cutoff := now().Add(-h.cfg.RequestExpiryAfter)
	ids, err := h.requestStore.ListStaleRequests(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale requests: %w", err)
	}

	expired := 0
	for _, id := range ids {
		changed := false
		err := h.requestStore.RunInTx(ctx, func(tx request.Tx) error {
			r, err := tx.GetRequestForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !r.UpdatedAt.Before(cutoff) || !request.Expire(r, now()) {
				return nil
			}
			changed = true
			return tx.UpdateRequestStatus(ctx, r)
		})
		if err != nil {
			if request.KindOf(err) == request.KindNotFound {
				continue
			}
			log.Printf("Error expiring request %s: %v\n", id, err)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}
