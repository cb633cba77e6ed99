package serverstate

import "testing"

func TestMemoryStore(t *testing.T) {
	prev := current()
	UseStore(NewMemoryStore())
	defer UseStore(prev)
	defer StopDrain()

	if got := GetState(); got != StatusNotReady {
		t.Fatalf("initial state = %q; want %q", got, StatusNotReady)
	}
	if IsDraining() {
		t.Fatalf("initial draining = true; want false")
	}

	SetModel("text300M", "cpu")
	SetState(StatusReady)
	st := Get()
	if st.Status != StatusReady || st.Model != "text300M" || st.Device != "cpu" {
		t.Fatalf("state after SetState = %+v", st)
	}
	if st.UpdatedAt.IsZero() {
		t.Fatalf("UpdatedAt not set")
	}

	StartDrain()
	if got := GetState(); got != StatusDraining {
		t.Fatalf("state after StartDrain = %q; want %q", got, StatusDraining)
	}
	if !IsDraining() {
		t.Fatalf("IsDraining = false; want true")
	}
	if Get().Model != "text300M" {
		t.Fatalf("drain should keep the model")
	}

	StopDrain()
	if IsDraining() || Get().Draining {
		t.Fatalf("draining after StopDrain")
	}
}

func TestDrainSurvivesStoreSwap(t *testing.T) {
	prev := current()
	defer UseStore(prev)
	defer StopDrain()

	UseStore(NewMemoryStore())
	StartDrain()
	UseStore(NewMemoryStore())
	if !IsDraining() || !Get().Draining {
		t.Fatalf("drain is a process flag and must not depend on the store")
	}
}

func TestUseStoreIgnoresNil(t *testing.T) {
	prev := current()
	UseStore(nil)
	if current() != prev {
		t.Fatalf("nil store replaced the active store")
	}
}
