package synonym

import "sort"

// Clusterer incrementally partitions code identifiers into synonym clusters
// from co-occurrence observations, and counts how many observations each
// code appeared in.
//
// Clusters are kept in a disjoint-set forest with path compression and union
// by size. Each root carries the index of its canonical member (highest
// frequency, lexicographically smallest identifier on ties). Frequencies only
// grow, so the canonical member is maintained incrementally on every
// increment and every union without rescanning the cluster.
//
// A Clusterer is not safe for concurrent use. Feed it from a single
// goroutine and call Snapshot once the pass is complete.
type Clusterer struct {
	index map[string]int
	ids   []string
	freq  []int

	parent    []int
	size      []int
	best      []int
	members   [][]int
	clustered []bool

	clusters int
}

// New returns an empty Clusterer.
func New() *Clusterer {
	return &Clusterer{index: make(map[string]int)}
}

func (c *Clusterer) intern(code string) int {
	if i, ok := c.index[code]; ok {
		return i
	}
	i := len(c.ids)
	c.index[code] = i
	c.ids = append(c.ids, code)
	c.freq = append(c.freq, 0)
	c.parent = append(c.parent, i)
	c.size = append(c.size, 1)
	c.best = append(c.best, i)
	c.members = append(c.members, []int{i})
	c.clustered = append(c.clustered, false)
	return i
}

func (c *Clusterer) find(i int) int {
	root := i
	for c.parent[root] != root {
		root = c.parent[root]
	}
	for c.parent[i] != root {
		next := c.parent[i]
		c.parent[i] = root
		i = next
	}
	return root
}

// better reports whether a outranks b as a canonical representative.
func (c *Clusterer) better(a, b int) bool {
	if c.freq[a] != c.freq[b] {
		return c.freq[a] > c.freq[b]
	}
	return c.ids[a] < c.ids[b]
}

func (c *Clusterer) bump(i, n int) {
	c.freq[i] += n
	r := c.find(i)
	if c.better(i, c.best[r]) {
		c.best[r] = i
	}
}

func (c *Clusterer) markClustered(i int) {
	if !c.clustered[i] {
		c.clustered[i] = true
		c.clusters++
	}
}

func (c *Clusterer) union(a, b int) {
	ra, rb := c.find(a), c.find(b)
	if ra == rb {
		return
	}
	if c.size[ra] < c.size[rb] {
		ra, rb = rb, ra
	}
	c.parent[rb] = ra
	c.size[ra] += c.size[rb]
	c.members[ra] = append(c.members[ra], c.members[rb]...)
	c.members[rb] = nil
	if c.better(c.best[rb], c.best[ra]) {
		c.best[ra] = c.best[rb]
	}
	c.clusters--
}

// Observe records one coding observation: the set of code identifiers
// extracted from a single record. Every distinct code gets its frequency
// incremented once. Two or more distinct codes are asserted synonymous and
// their clusters are merged.
func (c *Clusterer) Observe(codes []string) {
	if len(codes) == 0 {
		return
	}
	idx := make([]int, 0, len(codes))
	seen := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		i := c.intern(code)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, i)
		c.bump(i, 1)
	}
	if len(idx) < 2 {
		return
	}
	for _, i := range idx {
		c.markClustered(i)
	}
	for _, i := range idx[1:] {
		c.union(idx[0], i)
	}
}

// Merge folds a shard-local Clusterer into c: frequencies are added and
// every cluster of other is unioned into c's partition. other must not be
// used concurrently while merging.
func (c *Clusterer) Merge(other *Clusterer) {
	if other == nil {
		return
	}
	for j, code := range other.ids {
		if other.freq[j] > 0 {
			c.bump(c.intern(code), other.freq[j])
		} else {
			c.intern(code)
		}
	}
	for j, code := range other.ids {
		if !other.clustered[j] {
			continue
		}
		a := c.index[code]
		b := c.index[other.ids[other.find(j)]]
		c.markClustered(a)
		c.markClustered(b)
		c.union(a, b)
	}
}

// Canonical returns the representative of code's cluster. A code that never
// appeared in a multi-code observation is its own representative.
func (c *Clusterer) Canonical(code string) string {
	i, ok := c.index[code]
	if !ok || !c.clustered[i] {
		return code
	}
	return c.ids[c.best[c.find(i)]]
}

// Frequency returns how many observations contained code.
func (c *Clusterer) Frequency(code string) int {
	if i, ok := c.index[code]; ok {
		return c.freq[i]
	}
	return 0
}

// Frequencies returns a copy of the frequency table.
func (c *Clusterer) Frequencies() map[string]int {
	out := make(map[string]int, len(c.ids))
	for i, id := range c.ids {
		out[id] = c.freq[i]
	}
	return out
}

// Members returns the sorted members of code's cluster, or false when code
// is not clustered.
func (c *Clusterer) Members(code string) ([]string, bool) {
	i, ok := c.index[code]
	if !ok || !c.clustered[i] {
		return nil, false
	}
	return c.memberIDs(c.find(i)), true
}

func (c *Clusterer) memberIDs(root int) []string {
	out := make([]string, len(c.members[root]))
	for k, m := range c.members[root] {
		out[k] = c.ids[m]
	}
	sort.Strings(out)
	return out
}

// Clusters returns every cluster with its members sorted, ordered by first
// member.
func (c *Clusterer) Clusters() [][]string {
	out := make([][]string, 0, c.clusters)
	for i := range c.ids {
		if c.clustered[i] && c.parent[i] == i {
			out = append(out, c.memberIDs(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a][0] < out[b][0] })
	return out
}

// Len returns the number of clusters.
func (c *Clusterer) Len() int { return c.clusters }

// Known returns the number of distinct codes observed.
func (c *Clusterer) Known() int { return len(c.ids) }
