package store

import (
	"context"
	"fmt"
	"time"
)

// CountAllForPrincipal returns the number of alerts attributed to
// principalID since since (or all time if since is zero), per spec §4.3's
// count_all. This is a live query, not a maintained counter.
func (s *Store) CountAllForPrincipal(ctx context.Context, principalID int64, since time.Time) (int, error) {
	var count int
	var err error
	if since.IsZero() {
		err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE principal_id = $1`, principalID).Scan(&count)
	} else {
		err = s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM alerts WHERE principal_id = $1 AND created_at >= $2`, principalID, since).Scan(&count)
	}
	return count, err
}

// CountRecentForAddress returns the number of alerts from remoteAddress
// within the trailing window, per spec §4.3's count_recent.
func (s *Store) CountRecentForAddress(ctx context.Context, remoteAddress string, window time.Duration) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM alerts WHERE remote_address = $1 AND created_at > now() - $2::interval`,
		remoteAddress, fmt.Sprintf("%d seconds", int(window.Seconds())),
	).Scan(&count)
	return count, err
}
