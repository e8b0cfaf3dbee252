package mesh

import (
	"cmp"
	"slices"
)

// Rotate returns a copy of the scanner with every beacon rotated by variant
// v of the table.
func (s Scanner) Rotate(table RotationSet, v int) Scanner {
	beacons := make([]Coordinate, len(s.Beacons))
	for i, b := range s.Beacons {
		beacons[i] = table.Rotate(b, v)
	}
	return Scanner{ID: s.ID, Beacons: beacons}
}

// Orientations returns one rotated copy per table variant, in table order.
func (s Scanner) Orientations(table RotationSet) []Scanner {
	out := make([]Scanner, table.Len())
	for v := range out {
		out[v] = s.Rotate(table, v)
	}
	return out
}

// Translate returns a copy of the scanner with every beacon shifted by offset.
func (s Scanner) Translate(offset Coordinate) Scanner {
	beacons := make([]Coordinate, len(s.Beacons))
	for i, b := range s.Beacons {
		beacons[i] = b.Add(offset)
	}
	return Scanner{ID: s.ID, Beacons: beacons}
}

// orientationCache computes a scanner's rotated variants on first use.
type orientationCache struct {
	scanner  Scanner
	table    RotationSet
	variants [][]Coordinate
}

func newOrientationCache(s Scanner, table RotationSet) *orientationCache {
	return &orientationCache{
		scanner:  s,
		table:    table,
		variants: make([][]Coordinate, table.Len()),
	}
}

func (oc *orientationCache) variant(v int) []Coordinate {
	if oc.variants[v] == nil {
		oc.variants[v] = oc.scanner.Rotate(oc.table, v).Beacons
	}
	return oc.variants[v]
}

// BeaconSet is a set of absolute beacon positions.
type BeaconSet map[Coordinate]struct{}

// NewBeaconSet builds a set from the given coordinates.
func NewBeaconSet(coords ...Coordinate) BeaconSet {
	s := make(BeaconSet, len(coords))
	s.AddAll(coords)
	return s
}

// Add inserts c.
func (s BeaconSet) Add(c Coordinate) {
	s[c] = struct{}{}
}

// AddAll inserts every coordinate.
func (s BeaconSet) AddAll(coords []Coordinate) {
	for _, c := range coords {
		s[c] = struct{}{}
	}
}

// Contains reports whether c is in the set.
func (s BeaconSet) Contains(c Coordinate) bool {
	_, ok := s[c]
	return ok
}

// Len returns the number of distinct beacons.
func (s BeaconSet) Len() int {
	return len(s)
}

// Clone returns an independent copy.
func (s BeaconSet) Clone() BeaconSet {
	out := make(BeaconSet, len(s))
	for c := range s {
		out[c] = struct{}{}
	}
	return out
}

// Sorted returns the beacons ordered by X, then Y, then Z.
func (s BeaconSet) Sorted() []Coordinate {
	out := make([]Coordinate, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.SortFunc(out, compareCoordinates)
	return out
}

func compareCoordinates(a, b Coordinate) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}
