package mesh

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrIncompleteRegistration is wrapped by RegistrationError.
var ErrIncompleteRegistration = errors.New("cannot fully register scanners")

// RegistrationError reports scanners that could not be placed because a full
// pass made no progress.
type RegistrationError struct {
	Placed   int
	Unplaced []int
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("%v: %d placed, unplaced scanners %v", ErrIncompleteRegistration, e.Placed, e.Unplaced)
}

func (e *RegistrationError) Unwrap() error {
	return ErrIncompleteRegistration
}

// Registrar places scanners into the frame of scanner 0.
type Registrar struct {
	table     RotationSet
	threshold int
	workers   int
	logger    *zap.Logger
}

// RegistrarOption configures a Registrar.
type RegistrarOption func(*Registrar)

// WithThreshold sets the overlap threshold.
func WithThreshold(n int) RegistrarOption {
	return func(r *Registrar) {
		r.threshold = n
	}
}

// WithRotations sets the rotation table searched for each scanner.
func WithRotations(table RotationSet) RegistrarOption {
	return func(r *Registrar) {
		r.table = table
	}
}

// WithWorkers sets how many unplaced scanners are evaluated concurrently.
func WithWorkers(n int) RegistrarOption {
	return func(r *Registrar) {
		r.workers = n
	}
}

// WithLogger sets the logger used for progress output.
func WithLogger(l *zap.Logger) RegistrarOption {
	return func(r *Registrar) {
		r.logger = l
	}
}

// NewRegistrar returns a registrar with the proper rotation table, the
// default threshold and a single worker unless overridden.
func NewRegistrar(opts ...RegistrarOption) (*Registrar, error) {
	r := &Registrar{
		table:     ProperRotations(),
		threshold: DefaultOverlapThreshold,
		workers:   1,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.threshold < 1 {
		return nil, fmt.Errorf("overlap threshold must be at least 1, got %d", r.threshold)
	}
	if r.table.Len() == 0 {
		return nil, fmt.Errorf("rotation table is empty")
	}
	if r.workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", r.workers)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r, nil
}

// NewRegistrarFromConfig builds a registrar from the registration section of
// the config file.
func NewRegistrarFromConfig(cfg RegistrationConfig, logger *zap.Logger) (*Registrar, error) {
	table, err := NewRotationSet(cfg.Rotations)
	if err != nil {
		return nil, err
	}
	return NewRegistrar(
		WithThreshold(cfg.Threshold),
		WithRotations(table),
		WithWorkers(cfg.Workers),
		WithLogger(logger),
	)
}

// Rotations returns the registrar's rotation table.
func (r *Registrar) Rotations() RotationSet {
	return r.table
}

// Threshold returns the registrar's overlap threshold.
func (r *Registrar) Threshold() int {
	return r.threshold
}

// match is the outcome of searching one scanner's orientations.
type match struct {
	found       bool
	orientation int
	offset      Coordinate
}

// placedBeacons is the growing absolute map. order lists the set in
// insertion order so overlap searches visit beacons deterministically.
type placedBeacons struct {
	set   BeaconSet
	order []Coordinate
}

func (pb *placedBeacons) add(coords []Coordinate, offset Coordinate) {
	for _, b := range coords {
		c := b.Add(offset)
		if pb.set.Contains(c) {
			continue
		}
		pb.set.Add(c)
		pb.order = append(pb.order, c)
	}
}

// Register places every scanner. Scanner 0 defines the reference frame. Each
// pass tries all unplaced scanners against the beacons placed so far and
// merges every match in scanner order. A pass without progress ends with a
// *RegistrationError; there is no partial result.
func (r *Registrar) Register(ctx context.Context, scanners []Scanner) (*Result, error) {
	if len(scanners) == 0 {
		return nil, ErrNoScanners
	}

	placed := &placedBeacons{set: make(BeaconSet)}
	placed.add(scanners[0].Beacons, Coordinate{})

	placements := make([]*Placement, len(scanners))
	placements[0] = &Placement{Scanner: 0}
	offsets := []Coordinate{{}}

	caches := make([]*orientationCache, len(scanners))
	for i, s := range scanners {
		caches[i] = newOrientationCache(s, r.table)
	}

	pass := 0
	remaining := len(scanners) - 1
	for remaining > 0 {
		pass++
		unplaced := make([]int, 0, remaining)
		for i, p := range placements {
			if p == nil {
				unplaced = append(unplaced, i)
			}
		}
		r.logger.Debug("registration pass",
			zap.Int("pass", pass),
			zap.Int("unplaced", len(unplaced)),
			zap.Int("beacons", placed.set.Len()))

		matches, err := r.evaluate(ctx, unplaced, caches, placed)
		if err != nil {
			return nil, err
		}

		progress := 0
		for j, idx := range unplaced {
			m := matches[j]
			if !m.found {
				continue
			}
			placed.add(caches[idx].variant(m.orientation), m.offset)
			placements[idx] = &Placement{
				Scanner:     idx,
				Orientation: m.orientation,
				Offset:      m.offset,
				Pass:        pass,
			}
			offsets = append(offsets, m.offset)
			progress++
			r.logger.Debug("scanner placed",
				zap.Int("scanner", idx),
				zap.Int("orientation", m.orientation),
				zap.Stringer("offset", m.offset),
				zap.Int("beacons", placed.set.Len()))
		}

		if progress == 0 {
			regErr := &RegistrationError{
				Placed:   len(scanners) - remaining,
				Unplaced: unplaced,
			}
			r.logger.Debug("registration stalled", zap.Ints("unplaced", unplaced))
			return nil, regErr
		}
		remaining -= progress
	}

	result := &Result{
		Beacons:    placed.set,
		Placements: make([]Placement, len(scanners)),
		Offsets:    offsets,
		Passes:     pass,
	}
	for i, p := range placements {
		result.Placements[i] = *p
	}
	r.logger.Debug("registration complete",
		zap.Int("scanners", len(scanners)),
		zap.Int("beacons", result.BeaconCount()),
		zap.Int("passes", pass))
	return result, nil
}

// evaluate searches every unplaced scanner against a snapshot of the placed
// beacons. The snapshot is not mutated until evaluate returns, so workers
// only read shared state and each writes its own result slot.
func (r *Registrar) evaluate(ctx context.Context, unplaced []int, caches []*orientationCache, placed *placedBeacons) ([]match, error) {
	results := make([]match, len(unplaced))

	if r.workers == 1 || len(unplaced) == 1 {
		for j, idx := range unplaced {
			m, err := r.matchScanner(ctx, caches[idx], placed)
			if err != nil {
				return nil, err
			}
			results[j] = m
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for j, idx := range unplaced {
		g.Go(func() error {
			m, err := r.matchScanner(gctx, caches[idx], placed)
			if err != nil {
				return err
			}
			results[j] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// matchScanner tries each orientation in table order and stops at the first
// one that overlaps the placed beacons.
func (r *Registrar) matchScanner(ctx context.Context, oc *orientationCache, placed *placedBeacons) (match, error) {
	for v := 0; v < r.table.Len(); v++ {
		if err := ctx.Err(); err != nil {
			return match{}, err
		}
		if offset, ok := findOffset(placed.set, placed.order, oc.variant(v), r.threshold); ok {
			return match{found: true, orientation: v, offset: offset}, nil
		}
	}
	return match{}, nil
}

// TotalBeaconCount registers the scanners with default settings and returns
// the number of distinct beacons.
func TotalBeaconCount(scanners []Scanner) (int, error) {
	res, err := registerDefault(scanners)
	if err != nil {
		return 0, err
	}
	return res.BeaconCount(), nil
}

// MaxScannerDistance registers the scanners with default settings and
// returns the largest Manhattan distance between two scanner origins.
func MaxScannerDistance(scanners []Scanner) (int, error) {
	res, err := registerDefault(scanners)
	if err != nil {
		return 0, err
	}
	return res.MaxScannerDistance(), nil
}

func registerDefault(scanners []Scanner) (*Result, error) {
	r, err := NewRegistrar()
	if err != nil {
		return nil, err
	}
	return r.Register(context.Background(), scanners)
}
