package mesh

// DefaultOverlapThreshold is the number of coincident beacons required to
// accept an orientation and offset.
const DefaultOverlapThreshold = 12

// FindOffset looks for a translation under which at least threshold of the
// oriented beacons land on placed beacons. It returns the translation, which
// is also the absolute position of the scanner origin, and true on success.
// The first qualifying offset wins; placed beacons are visited in sorted
// order so the result is deterministic.
func FindOffset(placed BeaconSet, oriented []Coordinate, threshold int) (Coordinate, bool) {
	return findOffset(placed, placed.Sorted(), oriented, threshold)
}

// findOffset is FindOffset with the placed beacons already listed in the
// order they should be visited.
func findOffset(placed BeaconSet, order []Coordinate, oriented []Coordinate, threshold int) (Coordinate, bool) {
	if threshold < 1 || len(oriented) < threshold || len(order) < threshold {
		return Coordinate{}, false
	}

	// Every pair (p, b) votes for offset p-b. A vote total reaching the
	// threshold is only a candidate: it is confirmed against the set.
	votes := make(map[Coordinate]int, len(order)*len(oriented))
	for _, p := range order {
		for _, b := range oriented {
			offset := p.Sub(b)
			votes[offset]++
			if votes[offset] != threshold {
				continue
			}
			if CountOverlap(placed, oriented, offset) >= threshold {
				return offset, true
			}
		}
	}
	return Coordinate{}, false
}

// CountOverlap returns how many oriented beacons, shifted by offset, are in
// placed.
func CountOverlap(placed BeaconSet, oriented []Coordinate, offset Coordinate) int {
	n := 0
	for _, b := range oriented {
		if placed.Contains(b.Add(offset)) {
			n++
		}
	}
	return n
}
