package timeutil

import (
	"math"
	"testing"
	"time"
)

func TestTimecode(t *testing.T) {
	epoch := time.Unix(100, 0).UTC()
	got := Timecode(epoch, 25)
	want := 100.0 * 25
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("Timecode = %v, want %v", got, want)
	}
}

func TestOffsetApply(t *testing.T) {
	offset := Offset(200, 150)
	if offset != 50 {
		t.Errorf("Offset = %v, want 50", offset)
	}
	if got := Apply(150, offset); got != 200 {
		t.Errorf("Apply = %v, want 200", got)
	}
}
