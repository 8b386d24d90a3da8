package collision

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/corridor/internal/route"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func flight(offset time.Duration, slope, intercept float64) Flight {
	return Flight{Departure: t0.Add(offset), Route: route.New(slope, intercept)}
}

func TestCollides(t *testing.T) {
	tests := []struct {
		name string
		det  Detector
		a, b Flight
		want bool
	}{
		{
			name: "identical stationary routes",
			a:    flight(0, 0, 5),
			b:    flight(0, 0, 5),
			want: true,
		},
		{
			name: "stationary routes at different positions",
			a:    flight(0, 0, 5),
			b:    flight(0, 0, 6),
			want: false,
		},
		{
			name: "crossing exactly at common departure",
			a:    flight(0, 1, 0),
			b:    flight(0, 2, 0),
			want: true,
		},
		{
			name: "crossing before both departures",
			a:    flight(0, 1, 10),
			b:    flight(0, 2, 20),
			want: false,
		},
		{
			name: "follower catches up after departing",
			a:    flight(0, 1, 0),
			b:    flight(time.Second, 2, 0), // meets at t=2000ms
			want: true,
		},
		{
			name: "follower never catches up within endurance",
			det:  Detector{Endurance: time.Second},
			a:    flight(0, 1, 0),
			b:    flight(time.Second, 2, 0),
			want: false,
		},
		{
			name: "crossing before the later departure",
			a:    flight(0, 1, 0),
			b:    flight(10*time.Second, -1, 0), // b starts at 0 while a is at 10000
			want: false,
		},
		{
			name: "parallel trailing flight keeps constant gap",
			a:    flight(0, 1, 0),
			b:    flight(time.Second, 1, 0),
			want: false,
		},
		{
			name: "parallel gap inside separation",
			det:  Detector{Separation: 1500},
			a:    flight(0, 1, 0),
			b:    flight(time.Second, 1, 0),
			want: true,
		},
		{
			name: "separation widens a near miss into a conflict",
			det:  Detector{Separation: 5},
			a:    flight(0, 1, 10),
			b:    flight(0, 2, 14), // gap is 4 at departure and grows
			want: true,
		},
		{
			name: "crossing exactly at the horizon",
			det:  Detector{Horizon: t0.Add(time.Second)},
			a:    flight(0, 1, 0),
			b:    flight(500*time.Millisecond, 2, 0), // meets at t=1000ms
			want: true,
		},
		{
			name: "crossing just past the horizon",
			det:  Detector{Horizon: t0.Add(999 * time.Millisecond)},
			a:    flight(0, 1, 0),
			b:    flight(500*time.Millisecond, 2, 0),
			want: false,
		},
		{
			name: "airborne intervals do not overlap",
			det:  Detector{Endurance: time.Minute},
			a:    flight(0, 0, 5),
			b:    flight(2*time.Minute, 0, 5),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.det.Collides(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			rev, err := tt.det.Collides(tt.b, tt.a)
			require.NoError(t, err)
			assert.Equal(t, got, rev, "detector must be symmetric")
		})
	}
}

func TestConflictWindow(t *testing.T) {
	var d Detector

	w, hit, err := d.Conflict(flight(0, 1, 0), flight(time.Second, 2, 0))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, t0.Add(2*time.Second), w.Start)
	assert.Equal(t, t0.Add(2*time.Second), w.End)
	assert.False(t, w.Open)

	w, hit, err = d.Conflict(flight(0, 0, 5), flight(3*time.Second, 0, 5))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, t0.Add(3*time.Second), w.Start)
	assert.True(t, w.Open)

	d = Detector{Separation: 500}
	w, hit, err = d.Conflict(flight(0, 0.5, 0), flight(0, 0, 1000))
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, t0.Add(time.Second), w.Start)
	assert.Equal(t, t0.Add(3*time.Second), w.End)
}

func TestDegenerateRoute(t *testing.T) {
	var d Detector
	_, err := d.Collides(flight(0, 1e308, 0), flight(0, -1e308, 0))
	require.Error(t, err)

	var dre *DegenerateRouteError
	assert.True(t, errors.As(err, &dre))
}

func TestDetectorValidate(t *testing.T) {
	assert.NoError(t, Detector{}.Validate())
	assert.NoError(t, Detector{Separation: 2, Epsilon: 1e-6, Endurance: time.Hour}.Validate())
	assert.Error(t, Detector{Separation: -1}.Validate())
	assert.Error(t, Detector{Epsilon: -1}.Validate())
	assert.Error(t, Detector{Endurance: -time.Second}.Validate())
}

// TestSymmetryRandom checks argument-order independence over random inputs.
func TestSymmetryRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	detectors := []Detector{
		{},
		{Separation: 3},
		{Endurance: 10 * time.Second},
		{Separation: 0.5, Endurance: time.Minute, Horizon: t0.Add(30 * time.Second)},
	}

	for i := 0; i < 2000; i++ {
		a := flight(time.Duration(rng.Intn(20000))*time.Millisecond, float64(rng.Intn(7)-3)/4, float64(rng.Intn(21)-10))
		b := flight(time.Duration(rng.Intn(20000))*time.Millisecond, float64(rng.Intn(7)-3)/4, float64(rng.Intn(21)-10))
		d := detectors[i%len(detectors)]

		ab, err := d.Collides(a, b)
		require.NoError(t, err)
		ba, err := d.Collides(b, a)
		require.NoError(t, err)
		if ab != ba {
			t.Fatalf("asymmetric result for %+v / %+v with %+v: %v vs %v", a, b, d, ab, ba)
		}
	}
}

func TestLanding(t *testing.T) {
	tests := []struct {
		name string
		det  Detector
		want time.Time
	}{
		{"unbounded", Detector{}, time.Time{}},
		{"endurance", Detector{Endurance: 30 * time.Minute}, t0.Add(30 * time.Minute)},
		{"horizon", Detector{Horizon: t0.Add(time.Hour)}, t0.Add(time.Hour)},
		{"horizon first", Detector{Endurance: 30 * time.Minute, Horizon: t0.Add(10 * time.Minute)}, t0.Add(10 * time.Minute)},
		{"endurance first", Detector{Endurance: 30 * time.Minute, Horizon: t0.Add(time.Hour)}, t0.Add(30 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.det.Landing(t0))
		})
	}
}

func TestNearlyParallelWithinEpsilon(t *testing.T) {
	d := Detector{Epsilon: 1e-6}

	// Slopes differ by less than epsilon: treated as parallel and never meet, even
	// though the exact lines cross far in the future.
	hit, err := d.Collides(flight(0, 1, 0), flight(0, 1+1e-9, -50))
	require.NoError(t, err)
	assert.False(t, hit)

	hit, err = d.Collides(flight(0, 1, 0), flight(0, 1+1e-9, 0))
	require.NoError(t, err)
	assert.True(t, hit)
}
