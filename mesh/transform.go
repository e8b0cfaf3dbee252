package mesh

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Add returns c + o componentwise.
func (c Coordinate) Add(o Coordinate) Coordinate {
	return Coordinate{X: c.X + o.X, Y: c.Y + o.Y, Z: c.Z + o.Z}
}

// Sub returns c - o componentwise.
func (c Coordinate) Sub(o Coordinate) Coordinate {
	return Coordinate{X: c.X - o.X, Y: c.Y - o.Y, Z: c.Z - o.Z}
}

// Manhattan returns |x|+|y|+|z|.
func (c Coordinate) Manhattan() int {
	return abs(c.X) + abs(c.Y) + abs(c.Z)
}

// ManhattanTo returns the Manhattan distance between c and o.
func (c Coordinate) ManhattanTo(o Coordinate) int {
	return c.Sub(o).Manhattan()
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d,%d,%d", c.X, c.Y, c.Z)
}

func (c Coordinate) axis(i int) int {
	switch i {
	case 0:
		return c.X
	case 1:
		return c.Y
	default:
		return c.Z
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Rotation is a signed axis permutation: output axis i takes input axis
// Perm[i], multiplied by Sign[i].
type Rotation struct {
	Perm [3]int
	Sign [3]int
}

// Apply rotates a single coordinate.
func (r Rotation) Apply(c Coordinate) Coordinate {
	return Coordinate{
		X: r.Sign[0] * c.axis(r.Perm[0]),
		Y: r.Sign[1] * c.axis(r.Perm[1]),
		Z: r.Sign[2] * c.axis(r.Perm[2]),
	}
}

// Matrix returns the 3x3 matrix form of the rotation.
func (r Rotation) Matrix() *mat.Dense {
	data := make([]float64, 9)
	for i := 0; i < 3; i++ {
		data[i*3+r.Perm[i]] = float64(r.Sign[i])
	}
	return mat.NewDense(3, 3, data)
}

// Proper reports whether the rotation preserves handedness (determinant +1).
func (r Rotation) Proper() bool {
	return mat.Det(r.Matrix()) > 0
}

// RotationSet is an ordered table of orientations. Index 0 is always the
// identity.
type RotationSet []Rotation

// Sizes of the two supported rotation tables.
const (
	ProperRotationCount = 24
	SignedRotationCount = 48
)

// axis orders in table order; the identity comes first
var axisOrders = [6][3]int{
	{0, 1, 2},
	{2, 0, 1},
	{1, 2, 0},
	{0, 2, 1},
	{1, 0, 2},
	{2, 1, 0},
}

var (
	signedTable = buildSignedPermutations()
	properTable = filterProper(signedTable)
)

func buildSignedPermutations() RotationSet {
	set := make(RotationSet, 0, SignedRotationCount)
	for _, perm := range axisOrders {
		for bits := 0; bits < 8; bits++ {
			r := Rotation{Perm: perm, Sign: [3]int{1, 1, 1}}
			if bits&4 != 0 {
				r.Sign[0] = -1
			}
			if bits&2 != 0 {
				r.Sign[1] = -1
			}
			if bits&1 != 0 {
				r.Sign[2] = -1
			}
			set = append(set, r)
		}
	}
	return set
}

func filterProper(all RotationSet) RotationSet {
	set := make(RotationSet, 0, ProperRotationCount)
	for _, r := range all {
		if r.Proper() {
			set = append(set, r)
		}
	}
	return set
}

// ProperRotations returns the 24 orientation-preserving axis-aligned
// rotations.
func ProperRotations() RotationSet {
	return slices.Clone(properTable)
}

// SignedPermutations returns all 48 signed axis permutations, mirror images
// included.
func SignedPermutations() RotationSet {
	return slices.Clone(signedTable)
}

// NewRotationSet returns the table with the given number of entries.
func NewRotationSet(size int) (RotationSet, error) {
	switch size {
	case ProperRotationCount:
		return ProperRotations(), nil
	case SignedRotationCount:
		return SignedPermutations(), nil
	default:
		return nil, fmt.Errorf("unsupported rotation table size %d (want %d or %d)",
			size, ProperRotationCount, SignedRotationCount)
	}
}

// Len returns the number of variants.
func (s RotationSet) Len() int {
	return len(s)
}

// Rotate applies variant v of the proper rotation table to c. v outside
// [0, 24) panics.
func (c Coordinate) Rotate(v int) Coordinate {
	return properTable.Rotate(c, v)
}

// Rotate applies variant v to c. v outside [0, Len()) panics.
func (s RotationSet) Rotate(c Coordinate, v int) Coordinate {
	if v < 0 || v >= len(s) {
		panic(fmt.Sprintf("mesh: rotation variant %d out of range [0,%d)", v, len(s)))
	}
	return s[v].Apply(c)
}

// probe has distinct absolute components, so its image identifies a
// signed permutation uniquely.
var probe = Coordinate{X: 1, Y: 2, Z: 3}

// Inverse returns the variant w with Rotate(Rotate(c, v), w) == c for all
// c, or -1 if the table does not contain one.
func (s RotationSet) Inverse(v int) int {
	rotated := s.Rotate(probe, v)
	for w := range s {
		if s[w].Apply(rotated) == probe {
			return w
		}
	}
	return -1
}
