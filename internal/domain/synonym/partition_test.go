package synonym

import (
	"reflect"
	"sync"
	"testing"
)

func TestPartition_SnapshotIsStable(t *testing.T) {
	c := New()
	c.Observe([]string{"a", "b"})
	c.Observe([]string{"b"})
	p := c.Snapshot()

	c.Observe([]string{"a", "z"})
	c.Observe([]string{"a"})
	c.Observe([]string{"a"})

	if p.Canonical("a") != "b" {
		t.Errorf("expected snapshot canonical b, got %s", p.Canonical("a"))
	}
	if p.Canonical("z") != "z" {
		t.Errorf("code added after snapshot must map to itself, got %s", p.Canonical("z"))
	}
	if p.Frequency("a") != 1 {
		t.Errorf("expected snapshot frequency 1, got %d", p.Frequency("a"))
	}
	if c.Canonical("b") != "a" {
		t.Errorf("live clusterer should have moved on, got %s", c.Canonical("b"))
	}
}

func TestPartition_Views(t *testing.T) {
	c := New()
	c.Observe([]string{"LOINC 1", "SNOMED 2"})
	c.Observe([]string{"LOINC 1", "SNOMED 2"})
	c.Observe([]string{"SNOMED 2", "ICD10 3"})
	c.Observe([]string{"RxNorm 5", "NDC 6"})
	c.Observe([]string{"CVX 7"})
	p := c.Snapshot()

	if p.Len() != 2 || p.Known() != 6 {
		t.Fatalf("expected 2 clusters over 6 codes, got %d / %d", p.Len(), p.Known())
	}

	views := p.Clusters()
	if views[0].Canonical != "SNOMED 2" || views[0].Total != 6 {
		t.Errorf("unexpected first cluster %+v", views[0])
	}
	wantMembers := []Member{{"SNOMED 2", 3}, {"LOINC 1", 2}, {"ICD10 3", 1}}
	if !reflect.DeepEqual(views[0].Members, wantMembers) {
		t.Errorf("members = %+v, want %+v", views[0].Members, wantMembers)
	}
	if views[1].Canonical != "NDC 6" {
		t.Errorf("expected NDC 6 on tie, got %s", views[1].Canonical)
	}

	members, ok := p.Members("ICD10 3")
	if !ok || len(members) != 3 {
		t.Errorf("unexpected members %v", members)
	}
	members[0] = "mutated"
	if again, _ := p.Members("ICD10 3"); again[0] == "mutated" {
		t.Error("Members must return a copy")
	}
	if _, ok := p.Members("CVX 7"); ok {
		t.Error("singleton must not be clustered")
	}
}

func TestPartition_ConcurrentReads(t *testing.T) {
	c := New()
	for i := 0; i < 50; i++ {
		c.Observe([]string{"a", "b", "c"})
	}
	p := c.Snapshot()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if p.Canonical("c") != "a" {
					t.Error("unexpected canonical")
					return
				}
			}
		}()
	}
	wg.Wait()
}
