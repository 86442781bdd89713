package replace

import "testing"

func collect(l *List) []uint32 {
	var out []uint32
	l.ForwardEach(func(v uint32) { out = append(out, v) })
	return out
}

func TestPushAndOrder(t *testing.T) {
	var l List
	for i := uint32(0); i < 4; i++ {
		l.PushBack(i)
	}
	got := collect(&l)
	want := []uint32{0, 1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if l.Front().Value != 0 || l.Back().Value != 3 {
		t.Fatalf("front/back mismatch")
	}
}

func TestMoveBack(t *testing.T) {
	var l List
	n0 := l.PushBack(0)
	l.PushBack(1)
	l.PushBack(2)

	l.MoveBack(n0)
	got := collect(&l)
	want := []uint32{1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if l.Back().Value != 0 {
		t.Fatalf("back = %d, want 0", l.Back().Value)
	}
}

func TestPopFrontBack(t *testing.T) {
	var l List
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)

	l.PopFront()
	if l.Front().Value != 2 {
		t.Fatalf("front = %d, want 2", l.Front().Value)
	}
	l.PopBack()
	if l.Back().Value != 2 {
		t.Fatalf("back = %d, want 2", l.Back().Value)
	}
	l.PopBack()
	if !l.Empty() {
		t.Fatalf("expected empty list")
	}
}

func TestReverseEachStopsEarly(t *testing.T) {
	var l List
	for i := uint32(0); i < 5; i++ {
		l.PushBack(i)
	}
	var seen []uint32
	l.ReverseEach(func(n *Node) bool {
		seen = append(seen, n.Value)
		return n.Value != 3
	})
	want := []uint32{4, 3}
	if len(seen) != len(want) || seen[0] != want[0] || seen[1] != want[1] {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
}
