package location

import "time"

// RawFix is a single sample delivered by the location provider.
type RawFix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	Time      time.Time `json:"time"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Bearing   *float64  `json:"bearing,omitempty"`
	SpeedMps  *float64  `json:"speed_mps,omitempty"`
}

// SmoothedFix has the shape of RawFix with filtered coordinates.
type SmoothedFix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	AccuracyM float64   `json:"accuracy_m"`
	Time      time.Time `json:"time"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Bearing   *float64  `json:"bearing,omitempty"`
	SpeedMps  *float64  `json:"speed_mps,omitempty"`
}

func smoothed(raw RawFix, lat, lng float64) SmoothedFix {
	return SmoothedFix{
		Lat:       lat,
		Lng:       lng,
		AccuracyM: raw.AccuracyM,
		Time:      raw.Time,
		Altitude:  raw.Altitude,
		Bearing:   raw.Bearing,
		SpeedMps:  raw.SpeedMps,
	}
}

// HasPosition reports whether the coordinates are usable numbers.
func (f SmoothedFix) HasPosition() bool {
	return finite(f.Lat) && finite(f.Lng)
}
