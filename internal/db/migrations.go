package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'vehicle_type') THEN
			CREATE TYPE vehicle_type AS ENUM ('DIESEL', 'ELECTRIC', 'HYBRID');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'driver_experience') THEN
			CREATE TYPE driver_experience AS ENUM ('NEW', 'EXPERIENCED', 'EXPERT');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'trip_status') THEN
			CREATE TYPE trip_status AS ENUM ('REQUESTED', 'PLANNED', 'ACTIVE', 'REROUTING', 'COMPLETED', 'CANCELLED');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'telemetry_event_type') THEN
			CREATE TYPE telemetry_event_type AS ENUM ('HARSH_BRAKE', 'SPEEDING', 'FATIGUE_SIGNAL', 'LOCATION_PING');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'alert_severity') THEN
			CREATE TYPE alert_severity AS ENUM ('INFO', 'WARNING', 'CRITICAL');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'alert_subject') THEN
			CREATE TYPE alert_subject AS ENUM ('VEHICLE', 'TRIP', 'DRIVER');
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		plate_number VARCHAR(32) NOT NULL,
		brand VARCHAR(64),
		model VARCHAR(64),
		type vehicle_type NOT NULL,
		fuel_tank_litres DOUBLE PRECISION NOT NULL DEFAULT 0,
		battery_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		miles_per_litre DOUBLE PRECISION NOT NULL DEFAULT 0,
		miles_per_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		range_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
		energy_level_pct DOUBLE PRECISION NOT NULL DEFAULT 100,
		current_lat DOUBLE PRECISION,
		current_lng DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_vehicles_plate_number ON vehicles (plate_number);`,
	`CREATE TABLE IF NOT EXISTS drivers (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		full_name VARCHAR(255) NOT NULL,
		phone VARCHAR(32),
		experience driver_experience NOT NULL DEFAULT 'EXPERIENCED',
		safety_score DOUBLE PRECISION NOT NULL DEFAULT 100,
		shift_started_at TIMESTAMPTZ,
		driven_today_mins INTEGER NOT NULL DEFAULT 0,
		continuous_driving_mins INTEGER NOT NULL DEFAULT 0,
		last_break_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS trips (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		vehicle_id UUID NOT NULL REFERENCES vehicles(id),
		driver_id UUID NOT NULL REFERENCES drivers(id),
		origin_address TEXT NOT NULL,
		origin_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		origin_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
		destination_address TEXT NOT NULL,
		destination_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		destination_lng DOUBLE PRECISION NOT NULL DEFAULT 0,
		requested_departure_at TIMESTAMPTZ NOT NULL,
		status trip_status NOT NULL DEFAULT 'REQUESTED',
		selected_route_id UUID,
		reroute_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_status ON trips (status);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_vehicle_id ON trips (vehicle_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_driver_id ON trips (driver_id);`,
	`CREATE TABLE IF NOT EXISTS route_candidates (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		summary VARCHAR(255),
		waypoints JSONB,
		stops JSONB,
		distance_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_mins DOUBLE PRECISION NOT NULL DEFAULT 0,
		traffic_duration_mins DOUBLE PRECISION NOT NULL DEFAULT 0,
		cost_estimate DOUBLE PRECISION NOT NULL DEFAULT 0,
		energy_kwh DOUBLE PRECISION NOT NULL DEFAULT 0,
		fuel_litres DOUBLE PRECISION NOT NULL DEFAULT 0,
		safety_score INTEGER,
		risk_band VARCHAR(16),
		partial_scoring BOOLEAN NOT NULL DEFAULT FALSE,
		superseded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_route_candidates_trip_id ON route_candidates (trip_id);`,
	`CREATE TABLE IF NOT EXISTS safety_factor_results (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		route_candidate_id UUID NOT NULL REFERENCES route_candidates(id) ON DELETE CASCADE,
		factor VARCHAR(64) NOT NULL,
		subscore DOUBLE PRECISION NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		tag VARCHAR(255),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_safety_factor_results_candidate ON safety_factor_results (route_candidate_id);`,
	`CREATE TABLE IF NOT EXISTS telemetry_events (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		vehicle_id UUID NOT NULL REFERENCES vehicles(id),
		timestamp TIMESTAMPTZ NOT NULL,
		type telemetry_event_type NOT NULL,
		magnitude DOUBLE PRECISION NOT NULL DEFAULT 0,
		lat DOUBLE PRECISION,
		lng DOUBLE PRECISION,
		speed_mph DOUBLE PRECISION,
		posted_limit_mph DOUBLE PRECISION,
		energy_level_pct DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_telemetry_events_vehicle_ts ON telemetry_events (vehicle_id, timestamp);`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		subject_type alert_subject NOT NULL,
		subject_id UUID NOT NULL,
		severity alert_severity NOT NULL,
		reason VARCHAR(64) NOT NULL,
		message TEXT,
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_subject ON alerts (subject_type, subject_id);`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts (acknowledged);`,
	`CREATE TABLE IF NOT EXISTS trip_status_log (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		trip_id UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		old_status trip_status,
		new_status trip_status NOT NULL,
		note TEXT,
		changed_by UUID,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_trip_status_log_trip_id ON trip_status_log (trip_id);`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		window_start TIMESTAMPTZ NOT NULL,
		window_end TIMESTAMPTZ NOT NULL,
		vehicle_id UUID,
		driver_id UUID,
		completed_trips INTEGER NOT NULL DEFAULT 0,
		avg_safety_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		incident_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		energy_kwh_per_mile DOUBLE PRECISION NOT NULL DEFAULT 0,
		co2_saved_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_miles DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_snapshots_window ON analytics_snapshots (window_start, window_end);`,
}

func runMigrations(database *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration statement %d: %w", i, err)
		}
	}
	return nil
}
