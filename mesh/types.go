package mesh

import (
	"encoding/json"
	"fmt"
)

// Coordinate is a point in 3D space. Scanner reports use the scanner's own
// frame; placed beacons and scanner offsets use the reference frame.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Scanner is one sensor report: the beacons it detected, in its local frame.
// ID is the scanner's position in the input.
type Scanner struct {
	ID      int          `json:"id"`
	Beacons []Coordinate `json:"beacons"`
}

// Placement records where a registered scanner sits in the reference frame.
type Placement struct {
	Scanner     int        `json:"scanner"`
	Orientation int        `json:"orientation"` // index into the rotation table used
	Offset      Coordinate `json:"offset"`      // absolute position of the scanner origin
	Pass        int        `json:"pass"`        // registration pass that placed it; 0 for the reference
}

// Result is the outcome of a complete registration run.
type Result struct {
	Beacons    BeaconSet    `json:"-"`
	Placements []Placement  `json:"placements"` // indexed by scanner ID
	Offsets    []Coordinate `json:"offsets"`    // placement order, reference first
	Passes     int          `json:"passes"`
}

// BeaconCount returns the number of distinct beacons in the assembled map.
func (r *Result) BeaconCount() int {
	if r == nil {
		return 0
	}
	return r.Beacons.Len()
}

// MaxScannerDistance returns the greatest Manhattan distance between any two
// scanner origins. A single scanner yields 0.
func (r *Result) MaxScannerDistance() int {
	if r == nil {
		return 0
	}
	best := 0
	for i := 0; i < len(r.Offsets); i++ {
		for j := i + 1; j < len(r.Offsets); j++ {
			if d := r.Offsets[i].ManhattanTo(r.Offsets[j]); d > best {
				best = d
			}
		}
	}
	return best
}

// Summary is the JSON view of a Result served over HTTP and MQTT.
type Summary struct {
	BeaconCount int         `json:"beaconCount"`
	MaxDistance int         `json:"maxDistance"`
	Scanners    []Placement `json:"scanners"`
	Passes      int         `json:"passes"`
	Timestamp   int64       `json:"timestamp,omitempty"`
}

// Summarize extracts the answers and placements from a result.
func Summarize(r *Result) Summary {
	s := Summary{
		BeaconCount: r.BeaconCount(),
		MaxDistance: r.MaxScannerDistance(),
		Scanners:    make([]Placement, 0),
	}
	if r != nil {
		s.Scanners = append(s.Scanners, r.Placements...)
		s.Passes = r.Passes
	}
	return s
}

// RegistrationConfig tunes the registration driver.
type RegistrationConfig struct {
	Threshold int `yaml:"threshold" json:"threshold"` // minimum coincident beacons to accept a placement
	Rotations int `yaml:"rotations" json:"rotations"` // 24 (proper rotations) or 48 (signed permutations)
	Workers   int `yaml:"workers" json:"workers"`     // >1 evaluates unplaced scanners in parallel
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// RenderConfig controls the top-down map renders.
type RenderConfig struct {
	Padding       float64 `yaml:"padding" json:"padding"`             // world units around the bounds
	BeaconRadius  float64 `yaml:"beaconRadius" json:"beaconRadius"`   // world units
	ScannerRadius float64 `yaml:"scannerRadius" json:"scannerRadius"` // world units
	Scale         float64 `yaml:"scale" json:"scale"`                 // raster pixels per world unit
}

// Config represents the full configuration file
type Config struct {
	Registration RegistrationConfig `yaml:"registration" json:"registration"`
	Cache        string             `yaml:"cache,omitempty" json:"cache,omitempty"` // placement cache path; empty disables caching
	MQTT         MQTTConfig         `yaml:"mqtt" json:"mqtt"`
	Render       RenderConfig       `yaml:"render" json:"render"`
}

// RegistrationCache stores the placements of a previous run so an unchanged
// input can be replayed without searching orientations again.
type RegistrationCache struct {
	Fingerprint string      `json:"fingerprint"`
	Rotations   int         `json:"rotations"`
	Threshold   int         `json:"threshold"`
	Placements  []Placement `json:"placements"`
	LastUpdated int64       `json:"lastUpdated"`
}

// UnmarshalJSON rejects caches whose placements are not indexed by scanner
// ID, so a hand-edited file cannot silently reorder scanners.
func (c *RegistrationCache) UnmarshalJSON(data []byte) error {
	type plain RegistrationCache
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for i, p := range raw.Placements {
		if p.Scanner != i {
			return fmt.Errorf("placement %d belongs to scanner %d", i, p.Scanner)
		}
	}
	*c = RegistrationCache(raw)
	return nil
}
