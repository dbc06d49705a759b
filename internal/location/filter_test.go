package location

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func fixAt(lat, lng, acc float64) RawFix {
	return RawFix{Lat: lat, Lng: lng, AccuracyM: acc, Time: time.Unix(1700000000, 0)}
}

func TestFilterFirstFixPassesThrough(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	alt := 120.0
	raw := fixAt(52.0, 21.0, 5)
	raw.Altitude = &alt

	out := f.Filter(raw)
	if out.Lat != 52.0 || out.Lng != 21.0 {
		t.Fatalf("expected raw coordinates, got %v,%v", out.Lat, out.Lng)
	}
	if out.Altitude == nil || *out.Altitude != alt {
		t.Fatalf("expected altitude copied")
	}
	if _, _, ok := f.Position(); !ok {
		t.Fatalf("expected filter initialized")
	}
}

func TestFilterSecondFixBetweenAndCloserToFirst(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.Filter(fixAt(52.0, 21.0, 5))
	out := f.Filter(fixAt(52.0001, 21.0001, 5))

	if !(out.Lat > 52.0 && out.Lat < 52.0001) || !(out.Lng > 21.0 && out.Lng < 21.0001) {
		t.Fatalf("expected output strictly between raw points, got %v,%v", out.Lat, out.Lng)
	}
	if out.Lat-52.0 >= 52.0001-out.Lat {
		t.Fatalf("expected latitude closer to first fix, got %v", out.Lat)
	}
	if math.Abs(out.Lat-52.00003) > 1e-9 || math.Abs(out.Lng-21.00003) > 1e-9 {
		t.Fatalf("unexpected smoothing result %v,%v", out.Lat, out.Lng)
	}
}

func TestFilterConvergesWithoutOvershoot(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	rng := rand.New(rand.NewPCG(7, 11))

	baseLat, baseLng := 50.0, 19.0
	f.Filter(fixAt(baseLat, baseLng, 5))

	for i := 0; i < 500; i++ {
		prevLat, prevLng, _ := f.Position()
		// stay within ~30 m of the base so every hop is below the teleport threshold
		rawLat := baseLat + float64(rng.IntN(11)-5)*0.00005
		rawLng := baseLng + float64(rng.IntN(11)-5)*0.00005

		out := f.Filter(fixAt(rawLat, rawLng, 10))
		assertBetween(t, "lat", prevLat, rawLat, out.Lat)
		assertBetween(t, "lng", prevLng, rawLng, out.Lng)
	}
}

func assertBetween(t *testing.T, axis string, prev, raw, got float64) {
	t.Helper()
	if prev == raw {
		if got != raw {
			t.Fatalf("%s: expected %v to stay at %v", axis, got, raw)
		}
		return
	}
	lo, hi := math.Min(prev, raw), math.Max(prev, raw)
	if !(got > lo && got < hi) {
		t.Fatalf("%s: %v not strictly between %v and %v", axis, got, prev, raw)
	}
}

func TestFilterIgnoresInaccurateFix(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.Filter(fixAt(52.0, 21.0, 5))
	f.Filter(fixAt(52.0001, 21.0001, 5))
	lat, lng, _ := f.Position()

	noisy := fixAt(52.0002, 21.0002, 45)
	noisy.Time = time.Unix(1700000100, 0)
	speed := 3.2
	noisy.SpeedMps = &speed

	out := f.Filter(noisy)
	if out.Lat != lat || out.Lng != lng {
		t.Fatalf("expected previous filtered coordinates, got %v,%v", out.Lat, out.Lng)
	}
	if !out.Time.Equal(noisy.Time) || out.AccuracyM != 45 || out.SpeedMps == nil || *out.SpeedMps != speed {
		t.Fatalf("expected telemetry of the noisy fix")
	}
	gotLat, gotLng, _ := f.Position()
	if gotLat != lat || gotLng != lng {
		t.Fatalf("filter state changed on inaccurate fix")
	}
}

func TestFilterTeleportResets(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.Filter(fixAt(52.0, 21.0, 5))
	f.Filter(fixAt(52.0001, 21.0001, 5))

	out := f.Filter(fixAt(52.01, 21.01, 5))
	if out.Lat != 52.01 || out.Lng != 21.01 {
		t.Fatalf("expected raw coordinates after jump, got %v,%v", out.Lat, out.Lng)
	}
	lat, lng, _ := f.Position()
	if lat != 52.01 || lng != 21.01 {
		t.Fatalf("expected filter re-anchored, got %v,%v", lat, lng)
	}
}

func TestFilterReset(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.Filter(fixAt(52.0, 21.0, 5))
	f.Reset()

	lat, lng, ok := f.Position()
	if ok || lat != 0 || lng != 0 {
		t.Fatalf("expected cleared filter")
	}
	out := f.Filter(fixAt(10.0, 10.0, 5))
	if out.Lat != 10.0 || out.Lng != 10.0 {
		t.Fatalf("expected unfiltered first fix after reset")
	}
}

func TestFilterSurvivesNaN(t *testing.T) {
	f := NewFilter(DefaultFilterConfig())
	f.Filter(fixAt(52.0, 21.0, 5))

	out := f.Filter(fixAt(math.NaN(), 21.0, 5))
	if out.Lat != 52.0 || out.Lng != 21.0 {
		t.Fatalf("expected reference point, got %v,%v", out.Lat, out.Lng)
	}
	lat, _, _ := f.Position()
	if math.IsNaN(lat) {
		t.Fatalf("filter state corrupted")
	}
}

func TestFilterConfigDefaults(t *testing.T) {
	f := NewFilter(FilterConfig{SmoothingFactor: 1.5, MaxAccuracyM: -1})
	cfg := f.Config()
	if cfg.SmoothingFactor != DefaultSmoothingFactor || cfg.MaxAccuracyM != DefaultMaxAccuracyM || cfg.TeleportThresholdM != DefaultTeleportThresholdM {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	f = NewFilter(FilterConfig{SmoothingFactor: 1, MaxAccuracyM: 10, TeleportThresholdM: 50})
	if f.Config().SmoothingFactor != 1 {
		t.Fatalf("expected factor 1 accepted")
	}
}
