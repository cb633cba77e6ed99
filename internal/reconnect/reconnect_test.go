package reconnect

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	if d := Delay(0); d != time.Second {
		t.Fatalf("first delay = %s", d)
	}
	if d := Delay(-3); d != time.Second {
		t.Fatalf("negative attempt delay = %s", d)
	}
	if d := Delay(len(Schedule) - 1); d != Schedule[len(Schedule)-1] {
		t.Fatalf("last scheduled delay = %s", d)
	}
	if d := Delay(len(Schedule) + 10); d != Max {
		t.Fatalf("delay past schedule = %s; want %s", d, Max)
	}
}
