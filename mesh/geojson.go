package mesh

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature kinds written to the "kind" property.
const (
	KindBeacon  = "beacon"
	KindScanner = "scanner"
	KindBounds  = "bounds"
)

// projectXY drops Z for the top-down view.
func projectXY(c Coordinate) orb.Point {
	return orb.Point{float64(c.X), float64(c.Y)}
}

// ToFeatureCollection exports the assembled map as GeoJSON: one Point per
// beacon, one per scanner origin and a bounding Polygon. Coordinates are
// projected onto the XY plane; Z is kept in the properties.
func ToFeatureCollection(res *Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if res == nil {
		return fc
	}

	var all orb.MultiPoint
	for _, b := range res.Beacons.Sorted() {
		pt := projectXY(b)
		all = append(all, pt)
		f := geojson.NewFeature(pt)
		f.Properties["kind"] = KindBeacon
		f.Properties["z"] = b.Z
		fc.Append(f)
	}

	for _, p := range res.Placements {
		pt := projectXY(p.Offset)
		all = append(all, pt)
		f := geojson.NewFeature(pt)
		f.ID = fmt.Sprintf("S%d", p.Scanner)
		f.Properties["kind"] = KindScanner
		f.Properties["scanner"] = p.Scanner
		f.Properties["orientation"] = p.Orientation
		f.Properties["pass"] = p.Pass
		f.Properties["z"] = p.Offset.Z
		fc.Append(f)
	}

	if len(all) > 0 {
		f := geojson.NewFeature(all.Bound().ToPolygon())
		f.Properties["kind"] = KindBounds
		f.Properties["beaconCount"] = res.BeaconCount()
		f.Properties["maxDistance"] = res.MaxScannerDistance()
		fc.Append(f)
	}

	return fc
}

// MarshalGeoJSON returns the indented GeoJSON document for a result.
func MarshalGeoJSON(res *Result) ([]byte, error) {
	fc := ToFeatureCollection(res)
	raw, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal feature collection: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("reformat feature collection: %w", err)
	}
	return json.MarshalIndent(v, "", "  ")
}

// SaveGeoJSON writes the GeoJSON export to path.
func SaveGeoJSON(res *Result, path string) error {
	data, err := MarshalGeoJSON(res)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
