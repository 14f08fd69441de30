package cities

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// Shapefile lists cities and their extents from a polygon shapefile.
type Shapefile struct {
	path             string
	codeField        string
	memberStateField string
	codeLength       int
}

// NewShapefile creates a Shapefile source. Field names are matched
// case-insensitively.
func NewShapefile(path, codeField, memberStateField string, codeLength int) *Shapefile {
	return &Shapefile{
		path:             path,
		codeField:        strings.ToLower(codeField),
		memberStateField: strings.ToLower(memberStateField),
		codeLength:       codeLength,
	}
}

// Cities implements Source. Records sharing a code are merged and their
// extent covers all of them.
func (s *Shapefile) Cities(_ context.Context, memberState string) ([]City, error) {
	reader, err := shp.Open(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "cities: open shapefile %s", s.path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}
	codeIdx, ok := fieldIdx[s.codeField]
	if !ok {
		return nil, eris.Errorf("cities: shapefile %s has no field %s", s.path, s.codeField)
	}
	msIdx, hasMS := fieldIdx[s.memberStateField]
	if memberState != "" && !hasMS {
		return nil, eris.Errorf("cities: shapefile %s has no field %s", s.path, s.memberStateField)
	}

	var (
		order  []string
		byCode = make(map[string]*City)
		coords = make(map[string][]float64)
		skip   int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		code := truncate(attribute(reader, codeIdx), s.codeLength)
		if code == "" {
			skip++
			continue
		}
		var ms string
		if hasMS {
			ms = attribute(reader, msIdx)
		}
		if memberState != "" && !strings.EqualFold(ms, memberState) {
			continue
		}
		if _, ok := byCode[code]; !ok {
			byCode[code] = &City{Code: code, MemberState: ms}
			order = append(order, code)
		}
		coords[code] = append(coords[code], flatPoints(shape)...)
	}

	out := make([]City, 0, len(order))
	for _, code := range order {
		c := byCode[code]
		c.Extent = extentOf(coords[code])
		out = append(out, *c)
	}
	if skip > 0 {
		zap.L().Debug("cities: skipped shapefile records without code", zap.Int("skipped", skip))
	}
	zap.L().Info("cities loaded",
		zap.String("shapefile", s.path),
		zap.String("member_state", memberState),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func attribute(r *shp.Reader, idx int) string {
	return strings.TrimSpace(strings.TrimRight(r.Attribute(idx), "\x00"))
}

// flatPoints returns the vertices of a shape as flat XY coordinates.
func flatPoints(shape shp.Shape) []float64 {
	var pts []shp.Point
	switch s := shape.(type) {
	case *shp.Polygon:
		pts = s.Points
	case *shp.PolyLine:
		pts = s.Points
	case *shp.MultiPoint:
		pts = s.Points
	case *shp.Point:
		pts = []shp.Point{*s}
	}
	flat := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

// extentOf returns the bounding box of flat XY coordinates, or nil.
func extentOf(flat []float64) *Extent {
	if len(flat) < 2 {
		return nil
	}
	b := geom.NewMultiPointFlat(geom.XY, flat).Bounds()
	return &Extent{
		West:  b.Min(0),
		South: b.Min(1),
		East:  b.Max(0),
		North: b.Max(1),
	}
}
