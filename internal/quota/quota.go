// Package quota admission-controls store submissions per principal.
package quota

import (
	"context"

	"github.com/storeforge/storeforge-backend/internal/repository"
)

// Gate checks a principal's active store count against its quota. The check
// is race-permissive: enforcement happens at admission only, concurrent
// submissions may briefly overshoot.
type Gate struct {
	repo repository.Registry
}

func NewGate(repo repository.Registry) *Gate {
	return &Gate{repo: repo}
}

// Allow reports whether the user may create another store.
func (g *Gate) Allow(ctx context.Context, userID string, limit int) (bool, error) {
	count, err := g.repo.CountStoresForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < limit, nil
}
