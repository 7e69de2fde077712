// Package titles indexes HM Land Registry INSPIRE title polygons for
// point-in-polygon lookups. The index is a fallback hint: when a resolution
// ends needs_title_register, the caller can look up which registered title
// covers the property's coordinates and order that title's register.
package titles

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// titlePolygon is one INSPIRE index polygon with its bounding box cached
// for cheap rejection before the exact containment test.
type titlePolygon struct {
	inspireID string
	box       shp.Box
	rings     [][]float64
}

// Index holds the loaded polygons.
type Index struct {
	polygons []titlePolygon
}

// LoadShapefile reads an INSPIRE index polygon shapefile. The INSPIREID
// attribute becomes the lookup result; records without one are skipped.
func LoadShapefile(path string) (*Index, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "titles: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, "INSPIREID") {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("titles: %s has no INSPIREID field", path)
	}

	idx := &Index{}
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly.NumParts == 0 || len(poly.Points) == 0 {
			skipped++
			continue
		}

		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		if id == "" {
			skipped++
			continue
		}

		idx.polygons = append(idx.polygons, titlePolygon{
			inspireID: id,
			box:       poly.Box,
			rings:     polygonRings(poly),
		})
	}

	zap.L().Info("title polygons loaded",
		zap.String("path", path),
		zap.Int("polygons", len(idx.polygons)),
		zap.Int("skipped", skipped))
	return idx, nil
}

// Len reports the number of indexed polygons.
func (idx *Index) Len() int { return len(idx.polygons) }

// FindTitle returns the INSPIRE id of the polygon containing the point.
// The first ring of each polygon is its shell; subsequent rings are holes,
// so a point inside a hole does not match.
func (idx *Index) FindTitle(x, y float64) (string, bool) {
	p := geom.Coord{x, y}
	for _, tp := range idx.polygons {
		if x < tp.box.MinX || x > tp.box.MaxX || y < tp.box.MinY || y > tp.box.MaxY {
			continue
		}
		if !xy.IsPointInRing(geom.XY, p, tp.rings[0]) {
			continue
		}
		inHole := false
		for _, hole := range tp.rings[1:] {
			if xy.IsPointInRing(geom.XY, p, hole) {
				inHole = true
				break
			}
		}
		if !inHole {
			return tp.inspireID, true
		}
	}
	return "", false
}

// polygonRings flattens each shapefile polygon part into go-geom flat
// coordinates.
func polygonRings(p *shp.Polygon) [][]float64 {
	rings := make([][]float64, 0, p.NumParts)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		rings = append(rings, flat)
	}
	return rings
}
