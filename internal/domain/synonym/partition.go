package synonym

import "sort"

// Partition is an immutable snapshot of a finished clustering pass. It is
// safe for concurrent readers and is what aggregation should canonicalize
// against.
type Partition struct {
	canonical map[string]string
	cluster   map[string]int
	clusters  [][]string
	freq      map[string]int
}

// Snapshot freezes the current partition. Later Observe calls on c do not
// affect the returned Partition.
func (c *Clusterer) Snapshot() *Partition {
	p := &Partition{
		canonical: make(map[string]string),
		cluster:   make(map[string]int),
		clusters:  c.Clusters(),
		freq:      c.Frequencies(),
	}
	for k, members := range p.clusters {
		rep := c.Canonical(members[0])
		for _, m := range members {
			p.canonical[m] = rep
			p.cluster[m] = k
		}
	}
	return p
}

// Canonical returns the representative of code's cluster, or code itself
// when it is not clustered.
func (p *Partition) Canonical(code string) string {
	if rep, ok := p.canonical[code]; ok {
		return rep
	}
	return code
}

// Members returns the sorted members of code's cluster.
func (p *Partition) Members(code string) ([]string, bool) {
	k, ok := p.cluster[code]
	if !ok {
		return nil, false
	}
	out := make([]string, len(p.clusters[k]))
	copy(out, p.clusters[k])
	return out, true
}

// Frequency returns how many observations contained code.
func (p *Partition) Frequency(code string) int { return p.freq[code] }

// Frequencies returns a copy of the frequency table.
func (p *Partition) Frequencies() map[string]int {
	out := make(map[string]int, len(p.freq))
	for k, v := range p.freq {
		out[k] = v
	}
	return out
}

// Len returns the number of clusters.
func (p *Partition) Len() int { return len(p.clusters) }

// Known returns the number of distinct codes observed.
func (p *Partition) Known() int { return len(p.freq) }

// Member is one code of a cluster with its frequency.
type Member struct {
	Code      string `json:"code"`
	Frequency int    `json:"frequency"`
}

// Cluster is the reporting view of one synonym cluster. Members are ordered
// by frequency descending, then code.
type Cluster struct {
	Canonical string   `json:"canonical"`
	Total     int      `json:"total"`
	Members   []Member `json:"members"`
}

// Clusters returns the reporting view of every cluster, ordered by total
// frequency descending, then canonical code.
func (p *Partition) Clusters() []Cluster {
	out := make([]Cluster, 0, len(p.clusters))
	for _, members := range p.clusters {
		cl := Cluster{Canonical: p.canonical[members[0]], Members: make([]Member, len(members))}
		for i, m := range members {
			cl.Members[i] = Member{Code: m, Frequency: p.freq[m]}
			cl.Total += p.freq[m]
		}
		sort.Slice(cl.Members, func(a, b int) bool {
			if cl.Members[a].Frequency != cl.Members[b].Frequency {
				return cl.Members[a].Frequency > cl.Members[b].Frequency
			}
			return cl.Members[a].Code < cl.Members[b].Code
		})
		out = append(out, cl)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Total != out[b].Total {
			return out[a].Total > out[b].Total
		}
		return out[a].Canonical < out[b].Canonical
	})
	return out
}
