package visibility

import "testing"

func TestTracker(t *testing.T) {
	tr := NewTracker()
	if !tr.Visible() {
		t.Fatalf("tracker should start visible")
	}

	var changes []bool
	unsub := tr.OnChange(func(v bool) { changes = append(changes, v) })

	tr.Set(false)
	tr.Set(false) // no-op, already hidden
	tr.Set(true)

	if tr.Visible() != true {
		t.Fatalf("unexpected final state")
	}
	if len(changes) != 2 || changes[0] != false || changes[1] != true {
		t.Fatalf("unexpected change sequence: %v", changes)
	}

	unsub()
	tr.Set(false)
	if len(changes) != 2 {
		t.Fatalf("unsubscribed callback still firing: %v", changes)
	}
}
