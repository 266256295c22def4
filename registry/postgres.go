package registry

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// LoadPostgres builds an Index from a Postgres registry maintained by the
// external admin service. The tables are read-only to this engine.
func LoadPostgres(ctx context.Context, dsn string) (*Index, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping registry db: %w", err)
	}

	doc := &Document{}

	routes := map[string]*Route{}
	order := []string{}
	q := `SELECT route_id, COALESCE(route_name, ''), active, COALESCE(avg_speed_kmh, 0)
FROM routes ORDER BY route_id`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ID, &r.Name, &r.Active, &r.AvgSpeedKMH); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes[r.ID] = &r
		order = append(order, r.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("read routes: %w", err)
	}
	_ = rows.Close()

	q = `SELECT route_id, stop_id, COALESCE(stop_name, ''), lat, lon, COALESCE(dist_km, 0)
FROM route_stops ORDER BY route_id, stop_sequence`
	rows, err = db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	for rows.Next() {
		var routeID string
		var s Stop
		if err := rows.Scan(&routeID, &s.ID, &s.Name, &s.Lat, &s.Lon, &s.DistKM); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan stop: %w", err)
		}
		if r, ok := routes[routeID]; ok {
			r.Stops = append(r.Stops, s)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("read stops: %w", err)
	}
	_ = rows.Close()

	q = `SELECT vehicle_id, route_id FROM vehicles WHERE route_id IS NOT NULL ORDER BY vehicle_id`
	rows, err = db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query vehicles: %w", err)
	}
	for rows.Next() {
		var v Vehicle
		if err := rows.Scan(&v.ID, &v.RouteID); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		doc.Vehicles = append(doc.Vehicles, v)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("read vehicles: %w", err)
	}
	_ = rows.Close()

	for _, id := range order {
		doc.Routes = append(doc.Routes, *routes[id])
	}
	return NewIndex(doc)
}
