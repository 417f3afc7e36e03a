package engine

import (
	"sync/atomic"

	"github.com/mertipekreal/merf-stock-engine/internal/boosting"
)

// ModelCache is a single-slot in-memory cache for the active model.
// Readers never block writers: Publish swaps the pointer atomically and
// in-flight predictions keep using the model they already hold.
type ModelCache struct {
	current atomic.Pointer[cachedModel]
}

type cachedModel struct {
	model     *boosting.Model
	synthetic bool
}

// NewModelCache returns an empty cache.
func NewModelCache() *ModelCache {
	return &ModelCache{}
}

// Current returns the active model and whether it was trained on synthetic
// data. Returns nil when no model has been published yet.
func (c *ModelCache) Current() (*boosting.Model, bool) {
	entry := c.current.Load()
	if entry == nil {
		return nil, false
	}
	return entry.model, entry.synthetic
}

// Publish replaces the active model.
func (c *ModelCache) Publish(model *boosting.Model, synthetic bool) {
	c.current.Store(&cachedModel{model: model, synthetic: synthetic})
}
