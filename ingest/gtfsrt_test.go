package ingest

import (
	"math"
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

func feedFrame(t *testing.T, fm *gtfsrtpb.FeedMessage) []byte {
	t.Helper()
	b, err := proto.Marshal(fm)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return b
}

func vehicleEntity(id string, lat, lon float32) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String(id)},
			Position: &gtfsrtpb.Position{
				Latitude:  proto.Float32(lat),
				Longitude: proto.Float32(lon),
			},
		},
	}
}

func TestDecodeVehiclePositions(t *testing.T) {
	entity := vehicleEntity("bus-1", 42.69, 23.32)
	entity.Vehicle.Timestamp = proto.Uint64(1700000100)
	entity.Vehicle.Position.Speed = proto.Float32(10) // m/s
	entity.Vehicle.Position.Bearing = proto.Float32(270)

	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: []*gtfsrtpb.FeedEntity{entity},
	}

	reports, err := DecodeVehiclePositions(feedFrame(t, fm))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	r := reports[0]
	if r.VehicleID != "bus-1" {
		t.Errorf("expected vehicle bus-1, got %q", r.VehicleID)
	}
	if math.Abs(r.Lat-42.69) > 0.0001 || math.Abs(r.Lon-23.32) > 0.0001 {
		t.Errorf("position not decoded: (%f, %f)", r.Lat, r.Lon)
	}
	if r.Timestamp != 1700000100 {
		t.Errorf("entity timestamp should win over header, got %d", r.Timestamp)
	}
	if r.SpeedKMH == nil || math.Abs(*r.SpeedKMH-36) > 0.001 {
		t.Errorf("expected 10 m/s to decode as 36 km/h, got %v", r.SpeedKMH)
	}
	if r.HeadingDeg == nil || *r.HeadingDeg != 270 {
		t.Errorf("expected heading 270, got %v", r.HeadingDeg)
	}
}

func TestDecodeVehiclePositionsHeaderTimestampFallback(t *testing.T) {
	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1700000000),
		},
		Entity: []*gtfsrtpb.FeedEntity{vehicleEntity("bus-2", 1, 2)},
	}

	reports, err := DecodeVehiclePositions(feedFrame(t, fm))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Timestamp != 1700000000 {
		t.Errorf("expected header timestamp fallback, got %+v", reports)
	}
}

func TestDecodeVehiclePositionsSkipsIncompleteEntities(t *testing.T) {
	noPosition := vehicleEntity("bus-3", 0, 0)
	noPosition.Vehicle.Position = nil

	noVehicleID := vehicleEntity("bus-4", 1, 1)
	noVehicleID.Vehicle.Vehicle = nil

	fm := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrtpb.FeedEntity{
			noPosition,
			noVehicleID,
			{Id: proto.String("no-vehicle")},
			vehicleEntity("bus-5", 3, 4),
		},
	}

	reports, err := DecodeVehiclePositions(feedFrame(t, fm))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(reports) != 1 || reports[0].VehicleID != "bus-5" {
		t.Errorf("expected only bus-5 to survive, got %+v", reports)
	}
}

func TestDecodeVehiclePositionsRejectsGarbage(t *testing.T) {
	if _, err := DecodeVehiclePositions([]byte("not a protobuf frame")); err == nil {
		t.Error("expected a decode error")
	}
}
