package game

import "testing"

func TestMergedID_RoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 5, 10, 20} {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				pos := Position{X: x, Y: y}
				id := MergedID(pos, size)
				if id < 0 || id >= size*size {
					t.Fatalf("size=%d pos=%v id=%d out of range", size, pos, id)
				}
				if got := PositionFromMerged(id, size); got != pos {
					t.Fatalf("size=%d decode(encode(%v))=%v", size, pos, got)
				}
			}
		}
		for id := 0; id < size*size; id++ {
			if got := MergedID(PositionFromMerged(id, size), size); got != id {
				t.Fatalf("size=%d encode(decode(%d))=%d", size, id, got)
			}
		}
	}
}

func TestMove_SquareClampsAtWalls(t *testing.T) {
	const size = 5
	cases := []struct {
		name   string
		pos    Position
		action Action
		want   Position
	}{
		{"right wall", Position{size - 1, 0}, ActionRight, Position{size - 1, 0}},
		{"left wall", Position{0, 2}, ActionLeft, Position{0, 2}},
		{"top wall", Position{2, size - 1}, ActionUp, Position{2, size - 1}},
		{"bottom wall", Position{2, 0}, ActionDown, Position{2, 0}},
		{"interior move", Position{2, 2}, ActionRight, Position{3, 2}},
	}
	for _, c := range cases {
		if got := Move(c.pos, c.action, size, Square); got != c.want {
			t.Fatalf("%s: Move(%v, %d)=%v want=%v", c.name, c.pos, c.action, got, c.want)
		}
	}
}

func TestMove_TorusWraps(t *testing.T) {
	const size = 5
	cases := []struct {
		name   string
		pos    Position
		action Action
		want   Position
	}{
		{"wrap right", Position{size - 1, 0}, ActionRight, Position{0, 0}},
		{"wrap left", Position{0, 2}, ActionLeft, Position{size - 1, 2}},
		{"wrap up", Position{2, size - 1}, ActionUp, Position{2, 0}},
		{"wrap down", Position{2, 0}, ActionDown, Position{2, size - 1}},
		{"interior move", Position{2, 2}, ActionUp, Position{2, 3}},
	}
	for _, c := range cases {
		if got := Move(c.pos, c.action, size, Torus); got != c.want {
			t.Fatalf("%s: Move(%v, %d)=%v want=%v", c.name, c.pos, c.action, got, c.want)
		}
	}
}

func TestMove_StayIsIdentity(t *testing.T) {
	const size = 4
	for _, geom := range []Geometry{Square, Torus} {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				pos := Position{X: x, Y: y}
				if got := Move(pos, ActionStay, size, geom); got != pos {
					t.Fatalf("geom=%v stay moved %v to %v", geom, pos, got)
				}
			}
		}
	}
}

func TestParseGeometry(t *testing.T) {
	if g, err := ParseGeometry("square"); err != nil || g != Square {
		t.Fatalf("square: got %v, %v", g, err)
	}
	if g, err := ParseGeometry("torus"); err != nil || g != Torus {
		t.Fatalf("torus: got %v, %v", g, err)
	}
	if _, err := ParseGeometry("klein bottle"); err == nil {
		t.Fatalf("expected error for unknown geometry")
	}
}
