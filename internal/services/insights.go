package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"thinkpay/internal/cache"
	"thinkpay/internal/core"
	"thinkpay/internal/oracle"
)

// InsightsService asks the oracle for spending insights and caches the
// answer per identity until a new transaction arrives or the TTL passes.
type InsightsService struct {
	oracle oracle.Oracle
	cache  *cache.LRUCache[oracle.Insights]
}

func NewInsightsService(o oracle.Oracle, c *cache.LRUCache[oracle.Insights]) *InsightsService {
	if o == nil {
		o = oracle.Static{}
	}
	if c == nil {
		c = cache.NewLRUCache[oracle.Insights](256, 30*time.Minute)
	}
	return &InsightsService{oracle: o, cache: c}
}

func insightsKey(s *Session) string {
	head := "empty"
	if len(s.Transactions) > 0 {
		head = s.Transactions[0].ID
	}
	return s.UserID + ":" + head
}

// Insights returns cached insights or asks the oracle. Fallback answers are
// not cached.
func (i *InsightsService) Insights(ctx context.Context, s *Session) oracle.Insights {
	s.mu.Lock()
	key := insightsKey(s)
	recent := oracle.RecentForInsights(slices.Clone(s.Transactions))
	vaults := core.CloneVaults(s.Vaults)
	s.mu.Unlock()

	if ins, ok := i.cache.Get(key); ok {
		return ins
	}
	ins := i.oracle.MonthlyInsights(ctx, recent, vaults)
	if !ins.Fallback {
		i.cache.DeletePrefix(s.UserID + ":")
		i.cache.Set(key, ins)
	}
	slog.DebugContext(ctx, "Insights computed", "user_id", s.UserID, "fallback", ins.Fallback)
	return ins
}

// Forget drops cached insights of userID.
func (i *InsightsService) Forget(userID string) {
	i.cache.DeletePrefix(userID + ":")
}
