package mesh

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Fingerprint identifies a scanner input independent of formatting.
func Fingerprint(scanners []Scanner) string {
	sum := sha256.Sum256([]byte(FormatScanners(scanners)))
	return hex.EncodeToString(sum[:])
}

// LoadCache loads cached placements from a JSON file.
// A missing file is not an error: it returns nil, nil.
func LoadCache(path string) (*RegistrationCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No cache file yet
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	var cache RegistrationCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing cache file: %w", err)
	}

	return &cache, nil
}

// SaveCache writes cached placements to a JSON file
func SaveCache(path string, cache *RegistrationCache) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	// Update timestamp
	cache.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// NewCache captures a registration result for later replay.
func (r *Registrar) NewCache(scanners []Scanner, res *Result) *RegistrationCache {
	return &RegistrationCache{
		Fingerprint: Fingerprint(scanners),
		Rotations:   r.table.Len(),
		Threshold:   r.threshold,
		Placements:  append([]Placement(nil), res.Placements...),
	}
}

// Replay rebuilds a result from cached placements without searching
// orientations. Placements are applied in pass order and each one must
// still overlap the beacons placed before it, so a stale or edited cache is
// rejected instead of producing a wrong map.
func (r *Registrar) Replay(scanners []Scanner, cache *RegistrationCache) (*Result, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	if len(scanners) == 0 {
		return nil, ErrNoScanners
	}
	if cache.Fingerprint != Fingerprint(scanners) {
		return nil, fmt.Errorf("cache fingerprint does not match input")
	}
	if cache.Rotations != r.table.Len() || cache.Threshold != r.threshold {
		return nil, fmt.Errorf("cache built with %d rotations and threshold %d, registrar uses %d and %d",
			cache.Rotations, cache.Threshold, r.table.Len(), r.threshold)
	}
	if len(cache.Placements) != len(scanners) {
		return nil, fmt.Errorf("cache has %d placements for %d scanners", len(cache.Placements), len(scanners))
	}
	ref := cache.Placements[0]
	if ref.Orientation != 0 || ref.Offset != (Coordinate{}) || ref.Pass != 0 {
		return nil, fmt.Errorf("cache reference placement is not the identity")
	}

	placed := &placedBeacons{set: make(BeaconSet)}
	placed.add(scanners[0].Beacons, Coordinate{})
	offsets := []Coordinate{{}}

	maxPass := 0
	for i, p := range cache.Placements[1:] {
		if p.Scanner != i+1 {
			return nil, fmt.Errorf("cache placement %d belongs to scanner %d", i+1, p.Scanner)
		}
		if p.Pass < 1 {
			return nil, fmt.Errorf("scanner %d: invalid pass %d", p.Scanner, p.Pass)
		}
		maxPass = max(maxPass, p.Pass)
	}

	for pass := 1; pass <= maxPass; pass++ {
		// Within a pass every placement was found against the same snapshot.
		snapshot := placed.set.Clone()
		var inPass []Placement
		for _, p := range cache.Placements[1:] {
			if p.Pass == pass {
				inPass = append(inPass, p)
			}
		}
		for _, p := range inPass {
			if p.Orientation < 0 || p.Orientation >= r.table.Len() {
				return nil, fmt.Errorf("scanner %d: orientation %d out of range", p.Scanner, p.Orientation)
			}
			oriented := scanners[p.Scanner].Rotate(r.table, p.Orientation).Beacons
			if n := CountOverlap(snapshot, oriented, p.Offset); n < r.threshold {
				return nil, fmt.Errorf("scanner %d: cached placement overlaps %d beacons, need %d", p.Scanner, n, r.threshold)
			}
			placed.add(oriented, p.Offset)
			offsets = append(offsets, p.Offset)
		}
	}

	return &Result{
		Beacons:    placed.set,
		Placements: append([]Placement(nil), cache.Placements...),
		Offsets:    offsets,
		Passes:     maxPass,
	}, nil
}
