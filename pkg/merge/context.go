package merge

import (
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/pkg/buildings"
)

// Context tracks state during one merge run
type Context struct {
	// Upper-cased code -> outline names that code lost
	blacklist map[string]map[string]struct{}

	// Outline name -> current holder
	output map[string]*assignment
	// Outline names in first-assignment order
	order []string

	stats Stats
}

// assignment is the row currently holding an outline name
type assignment struct {
	rowIdx  int
	match   Match
	feature *geojson.Feature
}

// NewContext creates a new merge context
func NewContext() *Context {
	return &Context{
		blacklist: make(map[string]map[string]struct{}),
		output:    make(map[string]*assignment),
		stats:     Stats{IgnoredBy: make(map[string]int)},
	}
}

// Blacklist records that code may no longer take the outline called name
func (c *Context) Blacklist(code, name string) {
	key := buildings.CodeKey(code)
	names, ok := c.blacklist[key]
	if !ok {
		names = make(map[string]struct{})
		c.blacklist[key] = names
	}
	names[name] = struct{}{}
}

// IsBlacklisted reports whether code lost the outline called name earlier in the run
func (c *Context) IsBlacklisted(code, name string) bool {
	_, ok := c.blacklist[buildings.CodeKey(code)][name]
	return ok
}

// BlacklistSnapshot returns a sorted copy of the blacklist
func (c *Context) BlacklistSnapshot() map[string][]string {
	out := make(map[string][]string, len(c.blacklist))
	for code, names := range c.blacklist {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		sort.Strings(list)
		out[code] = list
	}
	return out
}

// holder returns the assignment currently holding name
func (c *Context) holder(name string) (*assignment, bool) {
	a, ok := c.output[name]
	return a, ok
}

// assign gives name to a row, keeping the name's original output position on replacement
func (c *Context) assign(name string, a *assignment) {
	if _, ok := c.output[name]; !ok {
		c.order = append(c.order, name)
	}
	c.output[name] = a
}

// Features returns the output features in first-assignment order
func (c *Context) Features() []*geojson.Feature {
	features := make([]*geojson.Feature, 0, len(c.order))
	for _, name := range c.order {
		features = append(features, c.output[name].feature)
	}
	return features
}

// RecordIgnored counts a row dropped for reason
func (c *Context) RecordIgnored(reason string) {
	c.stats.Ignored++
	c.stats.IgnoredBy[reason]++
}

// RecordCollision counts a collision and whether the newcomer won it
func (c *Context) RecordCollision(displaced bool) {
	c.stats.Collisions++
	if displaced {
		c.stats.Displacements++
	}
}

// RecordRequeue counts a row sent back to the queue
func (c *Context) RecordRequeue() {
	c.stats.Requeues++
}

// RecordPass counts a row taken off the queue
func (c *Context) RecordPass() {
	c.stats.Passes++
}

// GetStatistics returns the current run statistics
func (c *Context) GetStatistics() Stats {
	s := c.stats
	s.Matched = len(c.output)
	s.IgnoredBy = make(map[string]int, len(c.stats.IgnoredBy))
	for k, v := range c.stats.IgnoredBy {
		s.IgnoredBy[k] = v
	}
	return s
}
