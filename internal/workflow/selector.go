package workflow

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

// ConfigStore loads workflow config candidates for a program/module/event.
// Implementations return every non-deleted config; the selector applies the
// eligibility and preference rules in memory so the read path stays testable
// with fixture configs.
type ConfigStore interface {
	ListConfigs(ctx context.Context, programID, moduleID, eventID string) ([]Config, error)
}

// Selector picks the applicable workflow config for an entity event.
type Selector struct {
	store ConfigStore
	cache *gocache.Cache
	log   zerolog.Logger
}

// NewSelector creates a Selector with a TTL cache in front of the store.
// cacheTTL <= 0 disables caching.
func NewSelector(store ConfigStore, cacheTTL time.Duration, log zerolog.Logger) *Selector {
	var c *gocache.Cache
	if cacheTTL > 0 {
		c = gocache.New(cacheTTL, 2*cacheTTL)
	}
	return &Selector{store: store, cache: c, log: log}
}

// Select returns the matching config for the event, or nil when no config
// matches (the caller treats nil as "no gating required").
//
// Eligibility: enabled, non-deleted, and hierarchy-matching (intersection
// with hierarchyIDs non-empty, or associated to all hierarchies). Among
// eligible configs the preferred flow type wins; when preferred is empty,
// Review is tried before Approval. Ties within a flow type resolve to the
// most recently created config.
func (s *Selector) Select(
	ctx context.Context,
	programID, moduleID, eventID string,
	hierarchyIDs []string,
	preferred FlowType,
) (*Config, error) {
	configs, err := s.listConfigs(ctx, programID, moduleID, eventID)
	if err != nil {
		return nil, err
	}

	order := []FlowType{FlowReview, FlowApproval}
	if preferred != "" {
		order = []FlowType{preferred}
	}

	for _, ft := range order {
		if cfg := pickLatest(configs, ft, hierarchyIDs); cfg != nil {
			return cfg, nil
		}
	}
	return nil, nil
}

func (s *Selector) listConfigs(ctx context.Context, programID, moduleID, eventID string) ([]Config, error) {
	key := fmt.Sprintf("%s|%s|%s", programID, moduleID, eventID)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			return cached.([]Config), nil
		}
	}

	configs, err := s.store.ListConfigs(ctx, programID, moduleID, eventID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, configs, gocache.DefaultExpiration)
	}
	return configs, nil
}

// Invalidate drops the cached candidates for one program/module/event, used
// when configs are administratively changed.
func (s *Selector) Invalidate(programID, moduleID, eventID string) {
	if s.cache != nil {
		s.cache.Delete(fmt.Sprintf("%s|%s|%s", programID, moduleID, eventID))
	}
}

func pickLatest(configs []Config, ft FlowType, hierarchyIDs []string) *Config {
	var best *Config
	for i := range configs {
		c := &configs[i]
		if c.FlowType != ft || !c.IsEnabled || c.IsDeleted {
			continue
		}
		if !hierarchyMatch(c, hierarchyIDs) {
			continue
		}
		if best == nil || c.CreatedOn.After(best.CreatedOn) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	cp := *best
	return &cp
}

func hierarchyMatch(c *Config, hierarchyIDs []string) bool {
	if c.AllHierarchies {
		return true
	}
	for _, h := range c.Hierarchies {
		for _, want := range hierarchyIDs {
			if h == want {
				return true
			}
		}
	}
	return false
}
