package synonym

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func observeAll(c *Clusterer, obs [][]string) {
	for _, o := range obs {
		c.Observe(o)
	}
}

func TestClusterer_ExampleScenario(t *testing.T) {
	c := New()
	for i := 0; i < 3; i++ {
		c.Observe([]string{"LOINC 1", "SNOMED 2"})
	}
	c.Observe([]string{"SNOMED 2", "ICD10 3"})
	for i := 0; i < 5; i++ {
		c.Observe([]string{"LOINC 1"})
	}

	wantFreq := map[string]int{"LOINC 1": 8, "SNOMED 2": 4, "ICD10 3": 1}
	if got := c.Frequencies(); !reflect.DeepEqual(got, wantFreq) {
		t.Errorf("frequencies = %v, want %v", got, wantFreq)
	}

	clusters := c.Clusters()
	want := [][]string{{"ICD10 3", "LOINC 1", "SNOMED 2"}}
	if !reflect.DeepEqual(clusters, want) {
		t.Errorf("clusters = %v, want %v", clusters, want)
	}
	for _, code := range []string{"LOINC 1", "SNOMED 2", "ICD10 3"} {
		if got := c.Canonical(code); got != "LOINC 1" {
			t.Errorf("Canonical(%s) = %s, want LOINC 1", code, got)
		}
	}
}

func TestClusterer_RepeatedObservationIsIdempotentForPartition(t *testing.T) {
	once, twice := New(), New()
	s := []string{"a", "b", "c"}

	once.Observe(s)
	twice.Observe(s)
	twice.Observe(s)
	twice.Observe([]string{"a", "c"})

	if !reflect.DeepEqual(once.Clusters(), twice.Clusters()) {
		t.Errorf("partition changed: %v vs %v", once.Clusters(), twice.Clusters())
	}
	if twice.Len() != 1 {
		t.Errorf("expected 1 cluster, got %d", twice.Len())
	}
	if twice.Frequency("a") != 3 || twice.Frequency("b") != 2 {
		t.Errorf("frequency must count calls: a=%d b=%d", twice.Frequency("a"), twice.Frequency("b"))
	}
}

func TestClusterer_DuplicatesWithinObservationCountOnce(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "a", "b"})
	if c.Frequency("a") != 1 {
		t.Errorf("expected a=1, got %d", c.Frequency("a"))
	}
	c.Observe([]string{"x", "x"})
	if _, ok := c.Members("x"); ok {
		t.Error("a repeated single code must not form a cluster")
	}
}

func TestClusterer_Transitivity(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "b"})
	c.Observe([]string{"b", "c"})

	if c.Canonical("a") != c.Canonical("c") {
		t.Errorf("canonical(a)=%s canonical(c)=%s", c.Canonical("a"), c.Canonical("c"))
	}
	members, ok := c.Members("c")
	if !ok || !reflect.DeepEqual(members, []string{"a", "b", "c"}) {
		t.Errorf("members = %v", members)
	}
}

func TestClusterer_SingletonNonMerge(t *testing.T) {
	c := New()
	c.Observe([]string{"x"})
	c.Observe([]string{"x"})

	if c.Len() != 0 {
		t.Errorf("expected no clusters, got %d", c.Len())
	}
	if c.Canonical("x") != "x" {
		t.Errorf("expected x to be its own canonical, got %s", c.Canonical("x"))
	}
	if c.Canonical("never-seen") != "never-seen" {
		t.Error("unknown code must canonicalize to itself")
	}

	c.Observe([]string{"x", "y"})
	if c.Canonical("y") != "x" {
		t.Errorf("expected x (freq 3) to win, got %s", c.Canonical("y"))
	}
}

func TestClusterer_TieBreakDeterminism(t *testing.T) {
	ab, ba := New(), New()
	ab.Observe([]string{"SNOMED 9", "LOINC 9"})
	ba.Observe([]string{"LOINC 9", "SNOMED 9"})

	if ab.Canonical("SNOMED 9") != "LOINC 9" || ba.Canonical("SNOMED 9") != "LOINC 9" {
		t.Errorf("expected lexicographic tie-break to LOINC 9, got %s / %s",
			ab.Canonical("SNOMED 9"), ba.Canonical("SNOMED 9"))
	}
}

func TestClusterer_MergeOfEstablishedClusters(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "b"})
	c.Observe([]string{"c", "d"})
	c.Observe([]string{"e", "f"})
	if c.Len() != 3 {
		t.Fatalf("expected 3 clusters, got %d", c.Len())
	}

	c.Observe([]string{"b", "d", "f", "g"})
	if c.Len() != 1 {
		t.Fatalf("expected a single merged cluster, got %d: %v", c.Len(), c.Clusters())
	}
	members, _ := c.Members("a")
	if len(members) != 7 {
		t.Errorf("expected 7 members, got %v", members)
	}
	// b, d and f were each seen twice; b wins the tie.
	if c.Canonical("g") != "b" {
		t.Errorf("expected b, got %s", c.Canonical("g"))
	}
}

func TestClusterer_FrequencyChangesCanonical(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "b"})
	if c.Canonical("b") != "a" {
		t.Fatalf("expected a on tie, got %s", c.Canonical("b"))
	}
	c.Observe([]string{"b"})
	if c.Canonical("a") != "b" {
		t.Errorf("expected b after increment, got %s", c.Canonical("a"))
	}
}

func TestClusterer_EmptyObservation(t *testing.T) {
	c := New()
	c.Observe(nil)
	c.Observe([]string{})
	if c.Known() != 0 {
		t.Errorf("expected no codes, got %d", c.Known())
	}
}

// membershipInverse checks that every known code resolves to exactly one
// cluster and that cluster contains it.
func membershipInverse(t *testing.T, c *Clusterer) {
	t.Helper()
	seen := map[string]int{}
	for k, members := range c.Clusters() {
		for _, m := range members {
			if prev, ok := seen[m]; ok {
				t.Fatalf("%s in clusters %d and %d", m, prev, k)
			}
			seen[m] = k
			got, ok := c.Members(m)
			if !ok || !reflect.DeepEqual(got, members) {
				t.Fatalf("Members(%s) = %v, want %v", m, got, members)
			}
		}
	}
}

func randomObservations(r *rand.Rand, n, universe int) [][]string {
	obs := make([][]string, n)
	for i := range obs {
		size := 1 + r.Intn(3)
		for j := 0; j < size; j++ {
			obs[i] = append(obs[i], fmt.Sprintf("c%02d", r.Intn(universe)))
		}
	}
	return obs
}

func TestClusterer_OrderIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	obs := randomObservations(r, 60, 40)

	base := New()
	observeAll(base, obs)
	membershipInverse(t, base)

	for trial := 0; trial < 20; trial++ {
		shuffled := make([][]string, len(obs))
		copy(shuffled, obs)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		c := New()
		observeAll(c, shuffled)
		membershipInverse(t, c)

		if !reflect.DeepEqual(base.Clusters(), c.Clusters()) {
			t.Fatalf("trial %d: partition differs", trial)
		}
		if !reflect.DeepEqual(base.Frequencies(), c.Frequencies()) {
			t.Fatalf("trial %d: frequencies differ", trial)
		}
		for code := range base.Frequencies() {
			if base.Canonical(code) != c.Canonical(code) {
				t.Fatalf("trial %d: canonical(%s) %s != %s", trial, code, base.Canonical(code), c.Canonical(code))
			}
		}
	}
}

func TestClusterer_CanonicalMatchesRescan(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	c := New()
	observeAll(c, randomObservations(r, 200, 60))

	freq := c.Frequencies()
	for _, members := range c.Clusters() {
		want := members[0]
		for _, m := range members[1:] {
			if freq[m] > freq[want] || (freq[m] == freq[want] && m < want) {
				want = m
			}
		}
		for _, m := range members {
			if got := c.Canonical(m); got != want {
				t.Fatalf("Canonical(%s) = %s, want %s", m, got, want)
			}
		}
	}
}

func TestClusterer_ShardMergeEqualsSequential(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	obs := randomObservations(r, 90, 50)

	sequential := New()
	observeAll(sequential, obs)

	shards := []*Clusterer{New(), New(), New()}
	for i, o := range obs {
		shards[i%len(shards)].Observe(o)
	}
	merged := New()
	for _, s := range shards {
		merged.Merge(s)
	}
	membershipInverse(t, merged)

	if !reflect.DeepEqual(sequential.Clusters(), merged.Clusters()) {
		t.Errorf("merged partition differs from sequential")
	}
	if !reflect.DeepEqual(sequential.Frequencies(), merged.Frequencies()) {
		t.Errorf("merged frequencies differ from sequential")
	}
	if sequential.Len() != merged.Len() {
		t.Errorf("cluster count %d != %d", sequential.Len(), merged.Len())
	}
	for code := range sequential.Frequencies() {
		if sequential.Canonical(code) != merged.Canonical(code) {
			t.Errorf("canonical(%s) differs", code)
		}
	}
}

func TestClusterer_MergeNil(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "b"})
	c.Merge(nil)
	if c.Len() != 1 {
		t.Errorf("expected 1 cluster, got %d", c.Len())
	}
}
