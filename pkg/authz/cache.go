package authz

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DecisionCache caches membership-derived resolution decisions with
// exact per-organization invalidation. Entries are keyed by
// organization; any administration mutation touching an organization's
// roles, permissions or memberships purges that organization's entire
// entry before the mutation returns. There is no TTL: a stale entry
// can only exist until the invalidating mutation commits, preserving
// the read-after-write contract of the store.
//
// Super-admin decisions are never cached; they touch no
// organization-scoped data and have nothing to invalidate on.
//
// Fills are generation-fenced: a resolver snapshots the organization's
// generation before its store read and passes it to Put, which drops
// the fill when an invalidation bumped the generation in between. A
// resolution racing a mutation can therefore never re-seed the cache
// with a pre-mutation decision.
type DecisionCache struct {
	orgs *lru.Cache[string, *orgDecisions]

	// mu guards the generation state and orders Put's generation
	// check against Invalidate's bump-and-remove.
	mu    sync.Mutex
	gens  map[string]uint64
	epoch uint64
}

type orgDecisions struct {
	mu        sync.RWMutex
	decisions map[string]Decision
}

// NewDecisionCache creates a cache holding at most maxOrgs
// organizations' decision sets.
func NewDecisionCache(maxOrgs int) (*DecisionCache, error) {
	orgs, err := lru.New[string, *orgDecisions](maxOrgs)
	if err != nil {
		return nil, err
	}
	return &DecisionCache{orgs: orgs, gens: make(map[string]uint64)}, nil
}

func decisionKey(userID, permissionKey string) string {
	return userID + "\x00" + permissionKey
}

// Get returns the cached decision for (org, user, permission key).
func (c *DecisionCache) Get(orgID, userID, permissionKey string) (Decision, bool) {
	entry, ok := c.orgs.Get(orgID)
	if !ok {
		return Decision{}, false
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	d, ok := entry.decisions[decisionKey(userID, permissionKey)]
	return d, ok
}

// Generation returns the organization's current invalidation
// generation. Snapshot it before reading the store; pass it to Put.
func (c *DecisionCache) Generation(orgID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation(orgID)
}

// generation combines the per-org counter with the cache-wide epoch so
// both Invalidate and Purge advance it. Callers hold c.mu.
func (c *DecisionCache) generation(orgID string) uint64 {
	return c.epoch + c.gens[orgID]
}

// Put stores a decision for (org, user, permission key). The fill is
// dropped when gen no longer matches the organization's generation:
// an invalidation landed after the caller's store read, so the
// decision may predate the mutation that triggered it.
func (c *DecisionCache) Put(orgID, userID, permissionKey string, d Decision, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation(orgID) != gen {
		return
	}

	entry, ok := c.orgs.Get(orgID)
	if !ok {
		entry = &orgDecisions{decisions: make(map[string]Decision)}
		// A concurrent Put for the same org may race here; the loser's
		// entry is simply replaced and its single decision recomputed
		// on the next miss.
		c.orgs.Add(orgID, entry)
	}

	entry.mu.Lock()
	entry.decisions[decisionKey(userID, permissionKey)] = d
	entry.mu.Unlock()
}

// Invalidate drops every cached decision for the organization and
// bumps its generation so in-flight fills from pre-mutation reads are
// discarded.
func (c *DecisionCache) Invalidate(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[orgID]++
	c.orgs.Remove(orgID)
}

// Purge drops all cached decisions and advances the epoch, dropping
// any in-flight fill regardless of organization.
func (c *DecisionCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.orgs.Purge()
}

// Len returns the number of organizations currently cached.
func (c *DecisionCache) Len() int {
	return c.orgs.Len()
}
