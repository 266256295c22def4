package registry

// Stop is one scheduled stop on a route. DistKM is the cumulative
// distance-along-route from the route origin; when the source document does
// not provide it, it is derived from stop coordinates at load time.
type Stop struct {
	ID     string  `yaml:"id" validate:"required"`
	Name   string  `yaml:"name"`
	Lat    float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon    float64 `yaml:"lon" validate:"gte=-180,lte=180"`
	DistKM float64 `yaml:"distKM" validate:"gte=0"`
}

// Route is an ordered, immutable stop sequence. AvgSpeedKMH is the scheduled
// speed used as the projection fallback for stopped vehicles.
type Route struct {
	ID          string  `yaml:"id" validate:"required"`
	Name        string  `yaml:"name"`
	Active      bool    `yaml:"active"`
	AvgSpeedKMH float64 `yaml:"avgSpeedKMH" validate:"gte=0"`
	Stops       []Stop  `yaml:"stops" validate:"min=2,dive"`
}

// Vehicle is a registered vehicle and its route assignment.
// A vehicle belongs to at most one route at a time.
type Vehicle struct {
	ID      string `yaml:"id" validate:"required"`
	RouteID string `yaml:"routeID" validate:"required"`
}

// Document is the on-disk registry layout.
type Document struct {
	Routes   []Route   `yaml:"routes" validate:"min=1,dive"`
	Vehicles []Vehicle `yaml:"vehicles" validate:"dive"`
}

// Progress locates a vehicle along a route's stop polyline.
type Progress struct {
	DistAlongKM  float64 // cumulative distance from the route origin
	OffsetKM     float64 // cross-track distance from the polyline
	SegmentIndex int     // index of the segment the point projects onto
}
