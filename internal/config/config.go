package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type AuthConfig struct {
	AccessSecret string
}

type GatewayConfig struct {
	RetryAttempts  int
	RetryBaseDelay time.Duration
}

type PlannerConfig struct {
	// Fraction of battery capacity (percent) that must remain at every waypoint.
	ReserveMarginPct float64
	FastChargeMins   int
	FuelStopMins     int
	RestBreakMins    int
	RestBreakAfter   time.Duration
	MaxShiftDriving  time.Duration
	DieselPriceLitre float64
	EnergyPriceKWh   float64
	// Extra battery drain per 100 m of elevation gain, in kWh.
	ElevationKWhPer100m float64
	ChargeStationRadius float64
	RankKey             string
}

type ScorerConfig struct {
	FactorTimeout time.Duration
}

type MonitorConfig struct {
	PollInterval      time.Duration
	DelayThreshold    time.Duration
	ImprovementMargin int
	CriticalChargePct float64
}

type TelemetryConfig struct {
	HarshBrakeCount   int
	HarshBrakeWindow  time.Duration
	SpeedingMarginMph float64
	SpeedingSustain   time.Duration
	HOSMaxContinuous  time.Duration
	PenaltyDecay      float64
}

type AnalyticsConfig struct {
	DieselKgCO2PerLitre float64
	GridKgCO2PerKWh     float64
}

type OrchestratorConfig struct {
	TieBreakEpsilon int
}

type Config struct {
	Environment  string
	HTTP         HTTPConfig
	DB           DBConfig
	Auth         AuthConfig
	Gateway      GatewayConfig
	Planner      PlannerConfig
	Scorer       ScorerConfig
	Monitor      MonitorConfig
	Telemetry    TelemetryConfig
	Analytics    AnalyticsConfig
	Orchestrator OrchestratorConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Gateway: GatewayConfig{
			RetryAttempts:  v.GetInt("GATEWAY_RETRY_ATTEMPTS"),
			RetryBaseDelay: v.GetDuration("GATEWAY_RETRY_BASE_DELAY"),
		},
		Planner: PlannerConfig{
			ReserveMarginPct:    v.GetFloat64("PLANNER_RESERVE_MARGIN_PCT"),
			FastChargeMins:      v.GetInt("PLANNER_FAST_CHARGE_MINS"),
			FuelStopMins:        v.GetInt("PLANNER_FUEL_STOP_MINS"),
			RestBreakMins:       v.GetInt("PLANNER_REST_BREAK_MINS"),
			RestBreakAfter:      v.GetDuration("PLANNER_REST_BREAK_AFTER"),
			MaxShiftDriving:     v.GetDuration("PLANNER_MAX_SHIFT_DRIVING"),
			DieselPriceLitre:    v.GetFloat64("PLANNER_DIESEL_PRICE_LITRE"),
			EnergyPriceKWh:      v.GetFloat64("PLANNER_ENERGY_PRICE_KWH"),
			ElevationKWhPer100m: v.GetFloat64("PLANNER_ELEVATION_KWH_PER_100M"),
			ChargeStationRadius: v.GetFloat64("PLANNER_CHARGE_STATION_RADIUS_M"),
			RankKey:             v.GetString("PLANNER_RANK_KEY"),
		},
		Scorer: ScorerConfig{
			FactorTimeout: v.GetDuration("SCORER_FACTOR_TIMEOUT"),
		},
		Monitor: MonitorConfig{
			PollInterval:      v.GetDuration("MONITOR_POLL_INTERVAL"),
			DelayThreshold:    v.GetDuration("MONITOR_DELAY_THRESHOLD"),
			ImprovementMargin: v.GetInt("MONITOR_IMPROVEMENT_MARGIN"),
			CriticalChargePct: v.GetFloat64("MONITOR_CRITICAL_CHARGE_PCT"),
		},
		Telemetry: TelemetryConfig{
			HarshBrakeCount:   v.GetInt("TELEMETRY_HARSH_BRAKE_COUNT"),
			HarshBrakeWindow:  v.GetDuration("TELEMETRY_HARSH_BRAKE_WINDOW"),
			SpeedingMarginMph: v.GetFloat64("TELEMETRY_SPEEDING_MARGIN_MPH"),
			SpeedingSustain:   v.GetDuration("TELEMETRY_SPEEDING_SUSTAIN"),
			HOSMaxContinuous:  v.GetDuration("TELEMETRY_HOS_MAX_CONTINUOUS"),
			PenaltyDecay:      v.GetFloat64("TELEMETRY_PENALTY_DECAY"),
		},
		Analytics: AnalyticsConfig{
			DieselKgCO2PerLitre: v.GetFloat64("ANALYTICS_DIESEL_KG_CO2_PER_LITRE"),
			GridKgCO2PerKWh:     v.GetFloat64("ANALYTICS_GRID_KG_CO2_PER_KWH"),
		},
		Orchestrator: OrchestratorConfig{
			TieBreakEpsilon: v.GetInt("ORCHESTRATOR_TIE_BREAK_EPSILON"),
		},
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7094
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Gateway.RetryAttempts <= 0 {
		cfg.Gateway.RetryAttempts = 3
	}
	if cfg.Gateway.RetryBaseDelay <= 0 {
		cfg.Gateway.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.Planner.ReserveMarginPct <= 0 {
		cfg.Planner.ReserveMarginPct = 20
	}
	if cfg.Planner.FastChargeMins <= 0 {
		cfg.Planner.FastChargeMins = 45
	}
	if cfg.Planner.FuelStopMins <= 0 {
		cfg.Planner.FuelStopMins = 15
	}
	if cfg.Planner.RestBreakMins <= 0 {
		cfg.Planner.RestBreakMins = 30
	}
	if cfg.Planner.RestBreakAfter <= 0 {
		cfg.Planner.RestBreakAfter = 4 * time.Hour
	}
	if cfg.Planner.MaxShiftDriving <= 0 {
		cfg.Planner.MaxShiftDriving = 9 * time.Hour
	}
	if cfg.Planner.DieselPriceLitre <= 0 {
		cfg.Planner.DieselPriceLitre = 1.45
	}
	if cfg.Planner.EnergyPriceKWh <= 0 {
		cfg.Planner.EnergyPriceKWh = 0.45
	}
	if cfg.Planner.ElevationKWhPer100m <= 0 {
		cfg.Planner.ElevationKWhPer100m = 1.5
	}
	if cfg.Planner.ChargeStationRadius <= 0 {
		cfg.Planner.ChargeStationRadius = 5000
	}
	if cfg.Planner.RankKey == "" {
		cfg.Planner.RankKey = "cost"
	}
	if cfg.Scorer.FactorTimeout <= 0 {
		cfg.Scorer.FactorTimeout = 5 * time.Second
	}
	if cfg.Monitor.PollInterval <= 0 {
		cfg.Monitor.PollInterval = time.Minute
	}
	if cfg.Monitor.DelayThreshold <= 0 {
		cfg.Monitor.DelayThreshold = 15 * time.Minute
	}
	if cfg.Monitor.ImprovementMargin <= 0 {
		cfg.Monitor.ImprovementMargin = 5
	}
	if cfg.Monitor.CriticalChargePct <= 0 {
		cfg.Monitor.CriticalChargePct = 10
	}
	if cfg.Telemetry.HarshBrakeCount <= 0 {
		cfg.Telemetry.HarshBrakeCount = 3
	}
	if cfg.Telemetry.HarshBrakeWindow <= 0 {
		cfg.Telemetry.HarshBrakeWindow = 10 * time.Minute
	}
	if cfg.Telemetry.SpeedingMarginMph <= 0 {
		cfg.Telemetry.SpeedingMarginMph = 10
	}
	if cfg.Telemetry.SpeedingSustain <= 0 {
		cfg.Telemetry.SpeedingSustain = 2 * time.Minute
	}
	if cfg.Telemetry.HOSMaxContinuous <= 0 {
		cfg.Telemetry.HOSMaxContinuous = 4*time.Hour + 30*time.Minute
	}
	if cfg.Telemetry.PenaltyDecay <= 0 || cfg.Telemetry.PenaltyDecay >= 1 {
		cfg.Telemetry.PenaltyDecay = 0.9
	}
	if cfg.Analytics.DieselKgCO2PerLitre <= 0 {
		cfg.Analytics.DieselKgCO2PerLitre = 2.68
	}
	if cfg.Analytics.GridKgCO2PerKWh <= 0 {
		cfg.Analytics.GridKgCO2PerKWh = 0.21
	}
	if cfg.Orchestrator.TieBreakEpsilon <= 0 {
		cfg.Orchestrator.TieBreakEpsilon = 2
	}
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Planner.ReserveMarginPct >= 100 {
		return fmt.Errorf("PLANNER_RESERVE_MARGIN_PCT must be below 100")
	}
	return nil
}
