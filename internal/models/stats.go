package models

import "sync"

// Stats counts changes applied on one side of a sync.
type Stats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// Add returns the field-wise sum.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Created: s.Created + o.Created,
		Updated: s.Updated + o.Updated,
		Deleted: s.Deleted + o.Deleted,
	}
}

func (s Stats) Total() int {
	return s.Created + s.Updated + s.Deleted
}

// Counter accumulates Stats from concurrent goroutines. Counters only grow.
type Counter struct {
	mu    sync.Mutex
	stats Stats
}

// Inc records one applied action. Unknown actions are ignored.
func (c *Counter) Inc(a Action) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch a {
	case ActionCreate:
		c.stats.Created++
	case ActionUpdate:
		c.stats.Updated++
	case ActionDelete:
		c.stats.Deleted++
	}
}

// Add merges a batch total into the counter. Negative values are dropped.
func (c *Counter) Add(s Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = c.stats.Add(Stats{
		Created: max(s.Created, 0),
		Updated: max(s.Updated, 0),
		Deleted: max(s.Deleted, 0),
	})
}

func (c *Counter) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
