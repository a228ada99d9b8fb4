package ids

import "testing"

func TestSetAddContains(t *testing.T) {
	s := NewSet(4)

	if !s.Add(116680003) {
		t.Errorf("first Add should report inserted")
	}
	if s.Add(116680003) {
		t.Errorf("second Add should report already present")
	}
	if !s.Contains(116680003) {
		t.Errorf("expected 116680003 present")
	}
	if s.Contains(138875005) {
		t.Errorf("did not expect 138875005")
	}
	if s.Len() != 1 {
		t.Errorf("expected len 1, got %d", s.Len())
	}
}

func TestSetGrowKeepsAllKeys(t *testing.T) {
	s := NewSet(0)
	// Force several resizes with sequential SCTID-shaped keys
	for i := int64(0); i < 10000; i++ {
		s.Add(100000000 + i)
	}
	if s.Len() != 10000 {
		t.Fatalf("expected 10000 keys, got %d", s.Len())
	}
	for i := int64(0); i < 10000; i++ {
		if !s.Contains(100000000 + i) {
			t.Fatalf("lost key %d after growth", 100000000+i)
		}
	}
	if s.Contains(99999999) {
		t.Errorf("unexpected key present")
	}
}

func TestSetZeroKey(t *testing.T) {
	s := NewSet(2)
	if !s.Add(0) {
		t.Errorf("zero key should insert")
	}
	if !s.Contains(0) {
		t.Errorf("zero key should be present")
	}
	if s.Add(0) {
		t.Errorf("zero key should not insert twice")
	}
	if s.Len() != 1 {
		t.Errorf("expected len 1, got %d", s.Len())
	}
}

func TestSetDifferenceIntersection(t *testing.T) {
	a := NewSetOf(1, 2, 3, 4)
	b := NewSetOf(3, 4, 5)

	diff := a.Difference(b)
	if diff.Len() != 2 || !diff.Contains(1) || !diff.Contains(2) {
		t.Errorf("unexpected difference: %v", diff.Values())
	}

	inter := a.Intersection(b)
	if inter.Len() != 2 || !inter.Contains(3) || !inter.Contains(4) {
		t.Errorf("unexpected intersection: %v", inter.Values())
	}
}

func TestSetAddAllClone(t *testing.T) {
	a := NewSetOf(1, 2)
	b := NewSetOf(2, 3)
	a.AddAll(b)
	if a.Len() != 3 {
		t.Errorf("expected 3 keys, got %d", a.Len())
	}

	c := a.Clone()
	c.Add(4)
	if a.Contains(4) {
		t.Errorf("clone should not share storage")
	}
}

func TestLongLongMapPutGet(t *testing.T) {
	m := NewLongLongMap(2)
	m.Put(101, 900000000000011006)
	m.Put(102, 138875005)
	m.Put(101, 116680003) // overwrite

	if v, ok := m.Get(101); !ok || v != 116680003 {
		t.Errorf("expected 116680003, got %d ok=%v", v, ok)
	}
	if v, ok := m.Get(102); !ok || v != 138875005 {
		t.Errorf("expected 138875005, got %d ok=%v", v, ok)
	}
	if _, ok := m.Get(103); ok {
		t.Errorf("did not expect key 103")
	}
	if m.Len() != 2 {
		t.Errorf("expected len 2, got %d", m.Len())
	}

	keys := m.Keys()
	if keys.Len() != 2 || !keys.Contains(101) || !keys.Contains(102) {
		t.Errorf("unexpected keys: %v", keys.Values())
	}
}

func TestLongLongMapGrow(t *testing.T) {
	m := NewLongLongMap(0)
	for i := int64(1); i <= 5000; i++ {
		m.Put(i, i*2)
	}
	if m.Len() != 5000 {
		t.Fatalf("expected 5000 entries, got %d", m.Len())
	}
	for i := int64(1); i <= 5000; i++ {
		if v, ok := m.Get(i); !ok || v != i*2 {
			t.Fatalf("key %d: got %d ok=%v", i, v, ok)
		}
	}
}
