package maps

import (
	"github.com/richxcame/safecommute/pkg/common"
	"github.com/twpayne/go-polyline"
)

// DecodePolyline expands an encoded polyline (precision 5) into coordinates.
// Malformed input is a DecodeError.
func DecodePolyline(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, common.NewDecodeError("polyline is empty", nil)
	}

	coords, rest, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, common.NewDecodeError("invalid polyline", err)
	}
	if len(rest) > 0 {
		return nil, common.NewDecodeError("polyline has trailing data", nil)
	}

	path := make([]Coordinate, 0, len(coords))
	for _, c := range coords {
		path = append(path, Coordinate{Latitude: c[0], Longitude: c[1]})
	}
	return path, nil
}

// EncodePolyline is the inverse of DecodePolyline.
func EncodePolyline(path []Coordinate) string {
	coords := make([][]float64, 0, len(path))
	for _, c := range path {
		coords = append(coords, []float64{c.Latitude, c.Longitude})
	}
	return string(polyline.EncodeCoords(coords))
}
