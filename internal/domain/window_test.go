package domain

import (
	"testing"
	"time"
)

func TestNewWindowAppliesBuffers(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	w := NewWindow(start, 90*time.Minute)

	if !w.ServiceStart.Equal(start) {
		t.Fatalf("service_start = %v, want %v", w.ServiceStart, start)
	}
	if !w.ServiceEnd.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("service_end = %v, want %v", w.ServiceEnd, start.Add(90*time.Minute))
	}
	if !w.PaddedStart.Equal(start.Add(-time.Hour)) {
		t.Fatalf("padded_start = %v, want one hour before service_start", w.PaddedStart)
	}
	if !w.PaddedEnd.Equal(w.ServiceEnd.Add(time.Hour)) {
		t.Fatalf("padded_end = %v, want one hour after service_end", w.PaddedEnd)
	}
}

func TestOverlaps(t *testing.T) {
	at := func(hour, min int) time.Time {
		return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		a    Window
		b    Window
		want bool
	}{
		{
			name: "padded overlap despite disjoint service windows",
			// booked 10:00-11:00 padded 09:00-12:00 vs requested 11:30-12:30
			// padded 10:30-13:30
			a:    NewWindow(at(10, 0), time.Hour),
			b:    NewWindow(at(11, 30), time.Hour),
			want: true,
		},
		{
			name: "touching padded endpoints do not conflict",
			a:    Window{PaddedStart: at(9, 0), PaddedEnd: at(12, 0)},
			b:    Window{PaddedStart: at(12, 0), PaddedEnd: at(14, 0)},
			want: false,
		},
		{
			name: "fully disjoint",
			a:    NewWindow(at(8, 0), time.Hour),
			b:    NewWindow(at(14, 0), time.Hour),
			want: false,
		},
		{
			name: "contained",
			a:    Window{PaddedStart: at(9, 0), PaddedEnd: at(15, 0)},
			b:    Window{PaddedStart: at(10, 0), PaddedEnd: at(11, 0)},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Fatalf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Fatalf("Overlaps(b, a) = %v, want %v (symmetry)", got, tt.want)
			}
		})
	}
}
