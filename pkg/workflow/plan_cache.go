package workflow

import (
	"strconv"
	"sync"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"golang.org/x/sync/singleflight"
)

// PlanCache keeps the compiled plan of each workflow keyed by (id, version).
// Storing a newer version evicts the older plan.
type PlanCache struct {
	mu    sync.RWMutex
	plans map[string]*Plan
	group singleflight.Group
}

func NewPlanCache() *PlanCache {
	return &PlanCache{plans: make(map[string]*Plan)}
}

func (c *PlanCache) Get(workflowID string, version int) (*Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.plans[workflowID]
	if !ok || plan.Version != version {
		return nil, false
	}

	return plan, true
}

func (c *PlanCache) Put(plan *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.plans[plan.WorkflowID]; ok && current.Version > plan.Version {
		return
	}

	c.plans[plan.WorkflowID] = plan
}

func (c *PlanCache) Invalidate(workflowID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.plans, workflowID)
}

func (c *PlanCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.plans)
}

// Plan returns the cached plan for def or compiles it. Concurrent callers
// asking for the same version share one compilation.
func (c *PlanCache) Plan(def *models.Workflow) (*Plan, error) {
	if plan, ok := c.Get(def.ID, def.Version); ok {
		return plan, nil
	}

	key := def.ID + "@" + strconv.Itoa(def.Version)

	value, err, _ := c.group.Do(key, func() (any, error) {
		plan, err := Compile(def)
		if err != nil {
			return nil, err
		}

		c.Put(plan)

		return plan, nil
	})
	if err != nil {
		return nil, err
	}

	return value.(*Plan), nil
}
