package orderservice

import (
	"context"
	"fmt"

	"ocengine/internal/detector"
)

// Router is the bot_id → Order Service dispatch map the Tick Consumer
// addresses (spec.md §9 "Dispatch fan-out").
type Router struct {
	services map[string]*Service
}

func NewRouter() *Router {
	return &Router{services: make(map[string]*Service)}
}

func (r *Router) Register(botID string, svc *Service) {
	r.services[botID] = svc
}

// Route implements consumer.OrderRouter.
func (r *Router) Route(ctx context.Context, m detector.Match) error {
	svc, ok := r.services[m.Result.Strategy.BotID]
	if !ok {
		return fmt.Errorf("orderservice: no Order Service registered for bot %s", m.Result.Strategy.BotID)
	}
	return svc.Route(ctx, m)
}

// CheckExtend implements consumer.ExtendChecker, fanning out every admitted
// tick to every registered bot's Order Service so resting counter-trend
// LIMIT entries get re-checked against the live price (spec.md §4.7/§8 S4).
// Each Service short-circuits immediately on a venue mismatch, so this is
// cheap even with many bots registered.
func (r *Router) CheckExtend(ctx context.Context, t detector.Tick) {
	for _, svc := range r.services {
		svc.CheckExtend(ctx, t.Venue, t.Symbol, t.Price)
	}
}
