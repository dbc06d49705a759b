package location

import (
	"math"

	"github.com/jakubwesta/mobile-orienteering-sub001/internal/shared/geo"
)

const (
	DefaultSmoothingFactor    = 0.3
	DefaultMaxAccuracyM       = 30.0
	DefaultTeleportThresholdM = 100.0
)

type FilterConfig struct {
	// SmoothingFactor in (0,1]. Lower is smoother but lags more.
	SmoothingFactor    float64
	MaxAccuracyM       float64
	TeleportThresholdM float64
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		SmoothingFactor:    DefaultSmoothingFactor,
		MaxAccuracyM:       DefaultMaxAccuracyM,
		TeleportThresholdM: DefaultTeleportThresholdM,
	}
}

func (c FilterConfig) withDefaults() FilterConfig {
	if c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.MaxAccuracyM <= 0 {
		c.MaxAccuracyM = DefaultMaxAccuracyM
	}
	if c.TeleportThresholdM <= 0 {
		c.TeleportThresholdM = DefaultTeleportThresholdM
	}
	return c
}

// Filter is an exponential low-pass filter over GPS coordinates. It rejects
// the position of low-accuracy fixes and re-anchors on large jumps. A Filter
// is not safe for concurrent use; the run engine drives it from one goroutine.
type Filter struct {
	cfg         FilterConfig
	filteredLat float64
	filteredLng float64
	initialized bool
}

func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg.withDefaults()}
}

func (f *Filter) Config() FilterConfig {
	return f.cfg
}

func (f *Filter) Filter(raw RawFix) SmoothedFix {
	if !finite(raw.Lat) || !finite(raw.Lng) {
		// unusable position; keep the reference point and pass telemetry on
		if !f.initialized {
			return smoothed(raw, raw.Lat, raw.Lng)
		}
		return smoothed(raw, f.filteredLat, f.filteredLng)
	}

	if !f.initialized {
		f.anchor(raw)
		return smoothed(raw, raw.Lat, raw.Lng)
	}

	if raw.AccuracyM > f.cfg.MaxAccuracyM {
		return smoothed(raw, f.filteredLat, f.filteredLng)
	}

	if geo.DistanceM(f.filteredLat, f.filteredLng, raw.Lat, raw.Lng) > f.cfg.TeleportThresholdM {
		f.anchor(raw)
		return smoothed(raw, raw.Lat, raw.Lng)
	}

	f.filteredLat += f.cfg.SmoothingFactor * (raw.Lat - f.filteredLat)
	f.filteredLng += f.cfg.SmoothingFactor * (raw.Lng - f.filteredLng)
	return smoothed(raw, f.filteredLat, f.filteredLng)
}

// Position reports the current filter reference point.
func (f *Filter) Position() (lat, lng float64, ok bool) {
	return f.filteredLat, f.filteredLng, f.initialized
}

func (f *Filter) Reset() {
	f.filteredLat = 0
	f.filteredLng = 0
	f.initialized = false
}

func (f *Filter) anchor(raw RawFix) {
	f.filteredLat = raw.Lat
	f.filteredLng = raw.Lng
	f.initialized = true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
