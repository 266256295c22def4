package geo

import (
	"math"
)

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two points in kilometers
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// BearingDeg returns the initial bearing in degrees from point 1 to point 2,
// normalized to [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	la1 := lat1 * math.Pi / 180
	la2 := lat2 * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	y := math.Sin(dLon) * math.Cos(la2)
	x := math.Cos(la1)*math.Sin(la2) - math.Sin(la1)*math.Cos(la2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// SegmentProjection is the result of projecting a point onto one polyline segment.
type SegmentProjection struct {
	SegmentIndex int     // index of the segment's first vertex
	T            float64 // fractional position within the segment, clamped to [0,1]
	Lat          float64 // projected point
	Lon          float64
	OffsetKM     float64 // distance from the query point to the projected point
}

// NearestSegmentProjection projects a point onto the nearest segment of a
// polyline given as ordered (lat, lon) vertices. Projection is done in
// coordinate space, which is adequate at city scale; the returned offset is a
// haversine distance. Returns false when the polyline has fewer than two
// vertices.
func NearestSegmentProjection(pts [][2]float64, lat, lon float64) (SegmentProjection, bool) {
	if len(pts) < 2 {
		return SegmentProjection{}, false
	}

	best := SegmentProjection{SegmentIndex: -1}
	minDist := math.MaxFloat64

	for i := 0; i < len(pts)-1; i++ {
		p1 := pts[i]
		p2 := pts[i+1]

		vx := p2[1] - p1[1]
		vy := p2[0] - p1[0]
		wx := lon - p1[1]
		wy := lat - p1[0]

		denom := vx*vx + vy*vy
		t := 0.0
		if denom > 0 {
			t = (wx*vx + wy*vy) / denom
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
		}

		projLon := p1[1] + t*vx
		projLat := p1[0] + t*vy

		dx := lon - projLon
		dy := lat - projLat
		dist := dx*dx + dy*dy

		if dist < minDist {
			minDist = dist
			best = SegmentProjection{
				SegmentIndex: i,
				T:            t,
				Lat:          projLat,
				Lon:          projLon,
			}
		}
	}

	best.OffsetKM = HaversineKM(lat, lon, best.Lat, best.Lon)
	return best, true
}

// CumulativeKM returns the running haversine distance at each vertex of a
// polyline of (lat, lon) points. The first entry is always 0.
func CumulativeKM(pts [][2]float64) []float64 {
	if len(pts) == 0 {
		return nil
	}
	cum := make([]float64, len(pts))
	for i := 1; i < len(pts); i++ {
		cum[i] = cum[i-1] + HaversineKM(pts[i-1][0], pts[i-1][1], pts[i][0], pts[i][1])
	}
	return cum
}

// CoordinateAtKM returns the (lat, lon) point at a target distance along a
// polyline with precomputed cumulative distances. The target is clamped to
// the polyline's extent. Returns false when the polyline is degenerate.
func CoordinateAtKM(pts [][2]float64, cum []float64, targetKM float64) (float64, float64, bool) {
	if len(pts) < 2 || len(cum) != len(pts) {
		return 0, 0, false
	}
	if targetKM <= 0 {
		return pts[0][0], pts[0][1], true
	}
	last := cum[len(cum)-1]
	if targetKM >= last {
		return pts[len(pts)-1][0], pts[len(pts)-1][1], true
	}

	segIdx := 0
	for i := 1; i < len(cum); i++ {
		if cum[i] >= targetKM {
			segIdx = i - 1
			break
		}
	}

	prevKM := cum[segIdx]
	nextKM := cum[segIdx+1]
	t := 0.0
	if nextKM > prevKM {
		t = (targetKM - prevKM) / (nextKM - prevKM)
	}

	lat := pts[segIdx][0] + t*(pts[segIdx+1][0]-pts[segIdx][0])
	lon := pts[segIdx][1] + t*(pts[segIdx+1][1]-pts[segIdx][1])
	return lat, lon, true
}
