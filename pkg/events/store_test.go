package events

import "testing"

func TestEmitAssignsMonotonicSeqPerSession(t *testing.T) {
	s := NewStore(0)

	a1 := s.Emit("sess-a", TurnStarted, "", nil)
	a2 := s.Emit("sess-a", TurnCompleted, "", nil)
	b1 := s.Emit("sess-b", TurnStarted, "", nil)

	if a1.Seq != 1 || a2.Seq != 2 {
		t.Errorf("session a seqs = %d, %d, want 1, 2", a1.Seq, a2.Seq)
	}
	if b1.Seq != 1 {
		t.Errorf("session b seq = %d, want independent counter starting at 1", b1.Seq)
	}
}

func TestAfterReturnsOnlyNewerEvents(t *testing.T) {
	s := NewStore(0)
	s.Emit("sess", TurnStarted, "", nil)
	s.Emit("sess", ToolCallStarted, "exp-1", map[string]interface{}{"tool": "list_directory"})
	s.Emit("sess", TurnCompleted, "", nil)

	got := s.After("sess", 1)
	if len(got) != 2 {
		t.Fatalf("After(1) returned %d events, want 2", len(got))
	}
	if got[0].Type != ToolCallStarted || got[1].Type != TurnCompleted {
		t.Errorf("After(1) returned wrong events: %v, %v", got[0].Type, got[1].Type)
	}
	if got := s.After("unknown", 0); got != nil {
		t.Errorf("After on unknown session = %v, want nil", got)
	}
}

func TestRingDropsOldestBeyondCapacity(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Emit("sess", TurnStarted, "", nil)
	}
	got := s.After("sess", 0)
	if len(got) != 3 {
		t.Fatalf("retained %d events, want 3", len(got))
	}
	if got[0].Seq != 3 {
		t.Errorf("oldest retained seq = %d, want 3", got[0].Seq)
	}
}

func TestDropDiscardsSession(t *testing.T) {
	s := NewStore(0)
	s.Emit("sess", SessionStarted, "", nil)
	s.Drop("sess")
	if got := s.After("sess", 0); got != nil {
		t.Errorf("dropped session still has events: %v", got)
	}
}
