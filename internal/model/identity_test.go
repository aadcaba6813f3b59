package model

import "testing"

func TestIdentitySameByServerID(t *testing.T) {
	a := Identity{ID: "M1"}
	b := Identity{ID: "M1", LocalID: "L9"}
	if !a.Same(b) {
		t.Error("identities sharing server id should match")
	}
}

func TestIdentitySameByLocalID(t *testing.T) {
	a := Identity{LocalID: "L1"}
	b := Identity{ID: "M1", LocalID: "L1"}
	if !a.Same(b) {
		t.Error("identities sharing local id should match")
	}
}

func TestIdentityEmptyFieldsNeverMatch(t *testing.T) {
	a := Identity{}
	b := Identity{}
	if a.Same(b) {
		t.Error("two empty identities must not match")
	}

	c := Identity{ID: "M1"}
	d := Identity{LocalID: "L1"}
	if c.Same(d) {
		t.Error("disjoint identities must not match")
	}
}

func TestIdentityDistinct(t *testing.T) {
	a := Identity{ID: "M1", LocalID: "L1"}
	b := Identity{ID: "M2", LocalID: "L2"}
	if a.Same(b) {
		t.Error("distinct identities must not match")
	}
}
