package tapfsm

import "testing"

type edgeSink struct {
	edges [][2]bool
}

func (s *edgeSink) PushEdge(tms, tdi bool) {
	s.edges = append(s.edges, [2]bool{tms, tdi})
}

func TestStateByNameRoundTrip(t *testing.T) {
	for s := Reset; s <= IRUpdate; s++ {
		name := s.String()
		if got := StateByName(name); got != s {
			t.Errorf("StateByName(%q) = %v, want %v", name, got, s)
		}
	}
}

func TestStateByNameUnknown(t *testing.T) {
	if got := StateByName("NOT_A_STATE"); got != Unsupported {
		t.Fatalf("StateByName(bogus) = %v, want Unsupported", got)
	}
}

func TestResetFromUndefined(t *testing.T) {
	sink := &edgeSink{}
	e := NewEngine(sink)
	if err := e.SetState(Reset); err != nil {
		t.Fatalf("SetState(Reset) = %v", err)
	}
	if e.Current() != Reset {
		t.Fatalf("Current() = %v, want Reset", e.Current())
	}
	if len(sink.edges) != 5 {
		t.Fatalf("got %d edges, want 5 (TMS held high)", len(sink.edges))
	}
	for _, ed := range sink.edges {
		if !ed[0] || ed[1] {
			t.Fatalf("edge %v, want tms=true tdi=false", ed)
		}
	}
}

func TestEveryStateReachableFromReset(t *testing.T) {
	for tgt := Idle; tgt <= IRUpdate; tgt++ {
		sink := &edgeSink{}
		e := NewEngine(sink)
		if err := e.SetState(Reset); err != nil {
			t.Fatalf("SetState(Reset) = %v", err)
		}
		if err := e.SetState(tgt); err != nil {
			t.Errorf("SetState(%v) from Reset = %v", tgt, err)
			continue
		}
		if e.Current() != tgt {
			t.Errorf("Current() = %v, want %v", e.Current(), tgt)
		}
	}
}

func TestDRPauseToDRPauseRepulsesThroughUpdate(t *testing.T) {
	sink := &edgeSink{}
	e := NewEngine(sink)
	if err := e.SetState(Reset); err != nil {
		t.Fatal(err)
	}
	if err := e.SetState(DRPause); err != nil {
		t.Fatal(err)
	}
	sink.edges = nil
	if err := e.SetState(DRPause); err != nil {
		t.Fatalf("SetState(DRPause) from DRPause = %v", err)
	}
	if len(sink.edges) == 0 {
		t.Fatal("repeating DRPause emitted no edges, want a full Update/Select/Capture/Exit1/Pause loop")
	}
}

func TestUnreachableTransitionIsStuck(t *testing.T) {
	sink := &edgeSink{}
	e := NewEngine(sink)
	if err := e.SetState(DRShift); err == nil {
		t.Fatal("SetState(DRShift) from Undefined succeeded, want TAPStuck")
	}
}

func TestForceStateNoEdges(t *testing.T) {
	sink := &edgeSink{}
	e := NewEngine(sink)
	e.ForceState(DRPause)
	if e.Current() != DRPause {
		t.Fatalf("Current() = %v, want DRPause", e.Current())
	}
	if len(sink.edges) != 0 {
		t.Fatalf("ForceState emitted %d edges, want 0", len(sink.edges))
	}
}
