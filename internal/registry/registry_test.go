package registry

import "testing"

func TestRegisterAndSnapshot(t *testing.T) {
	r := New(nil)
	r.Register("cam")

	st, ok := r.Snapshot("cam")
	if !ok {
		t.Fatal("registered camera missing")
	}
	if st.Name != "cam" || st.Phase != PhaseStarting {
		t.Errorf("initial state = %+v", st)
	}

	// Registering again must not reset accumulated state.
	r.Update("cam", func(s *State) { s.ConsecutiveFailures = 3 })
	r.Register("cam")
	st, _ = r.Snapshot("cam")
	if st.ConsecutiveFailures != 3 {
		t.Errorf("re-register reset state: %+v", st)
	}
}

func TestUpdateCreatesMissingEntry(t *testing.T) {
	r := New(nil)
	r.Update("cam", func(s *State) { s.Phase = PhaseWaiting })

	st, ok := r.Snapshot("cam")
	if !ok || st.Phase != PhaseWaiting {
		t.Errorf("state = %+v, ok = %v", st, ok)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(nil)
	r.Update("cam", func(s *State) { s.LastSSIM = 0.5 })

	st, _ := r.Snapshot("cam")
	st.LastSSIM = 0.9

	again, _ := r.Snapshot("cam")
	if again.LastSSIM != 0.5 {
		t.Errorf("mutating a snapshot leaked into the registry: %v", again.LastSSIM)
	}
}

func TestRemove(t *testing.T) {
	r := New(nil)
	r.Register("cam")
	r.Remove("cam")
	if _, ok := r.Snapshot("cam"); ok {
		t.Error("removed camera still present")
	}
	// Removing twice is a no-op.
	r.Remove("cam")
}

func TestSnapshotAllSorted(t *testing.T) {
	r := New(nil)
	r.Register("zulu")
	r.Register("alpha")
	r.Register("mid")

	all := r.SnapshotAll()
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Name != "alpha" || all[1].Name != "mid" || all[2].Name != "zulu" {
		t.Errorf("not sorted: %s %s %s", all[0].Name, all[1].Name, all[2].Name)
	}
}
