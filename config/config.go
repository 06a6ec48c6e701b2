package config

import "github.com/caarlos0/env/v6"

// Dedup holds every tunable of the matching pipeline. It is passed into the
// scorer and decision engine at construction so scoring stays a pure function
// of listing data plus this struct.
type Dedup struct {
	// Radius of the proximity search around a listing's coordinates (meters)
	SearchRadiusM float64 `env:"DEDUP_SEARCH_RADIUS_M" envDefault:"100"`

	// Maximum number of nearby listings considered per pass
	MaxCandidates int `env:"DEDUP_MAX_CANDIDATES" envDefault:"10"`

	// Overall score at or above which a pair auto-merges
	AutoMatchThreshold float64 `env:"DEDUP_AUTO_MATCH_THRESHOLD" envDefault:"0.90"`

	// Overall score at or above which a pair is queued for human review
	ReviewThreshold float64 `env:"DEDUP_REVIEW_THRESHOLD" envDefault:"0.60"`

	// Overall score blend weights
	CoordinateWeight float64 `env:"DEDUP_COORDINATE_WEIGHT" envDefault:"0.20"`
	AddressWeight    float64 `env:"DEDUP_ADDRESS_WEIGHT" envDefault:"0.15"`
	FeaturesWeight   float64 `env:"DEDUP_FEATURES_WEIGHT" envDefault:"0.65"`

	// Distance below which the coordinate score is a perfect 1.0 (meters)
	CoordinateExactM float64 `env:"DEDUP_COORDINATE_EXACT_M" envDefault:"10"`

	// Decay constant of the coordinate score beyond the exact band (meters)
	CoordinateDecayM float64 `env:"DEDUP_COORDINATE_DECAY_M" envDefault:"300"`

	// Relative price/size gaps beyond which a pair is rejected outright
	PriceRejectTolerance float64 `env:"DEDUP_PRICE_REJECT_TOLERANCE" envDefault:"0.20"`
	SizeRejectTolerance  float64 `env:"DEDUP_SIZE_REJECT_TOLERANCE" envDefault:"0.20"`

	// Relative tolerances used by the feature score
	PriceMatchTolerance float64 `env:"DEDUP_PRICE_MATCH_TOLERANCE" envDefault:"0.05"`
	SizeMatchTolerance  float64 `env:"DEDUP_SIZE_MATCH_TOLERANCE" envDefault:"0.10"`

	// Equality tolerances used during merges
	MergeSizeTolerance  float64 `env:"DEDUP_MERGE_SIZE_TOLERANCE" envDefault:"0.05"`
	CoordEqualTolerance float64 `env:"DEDUP_COORD_EQUAL_TOLERANCE" envDefault:"0.0001"`
}

type Config struct {
	// Server configuration
	Server struct {
		Port   string `env:"SERVER_PORT" envDefault:"5260"`
		DBPath string `env:"DB_PATH" envDefault:"database/propmatch.db"`
	}

	Dedup Dedup

	// Worker pool configuration
	Worker struct {
		// Number of concurrent dedup workers
		Count int `env:"WORKER_COUNT" envDefault:"2"`

		// Maximum number of retries for a failed dedup pass
		MaxRetries int `env:"WORKER_MAX_RETRIES" envDefault:"3"`

		// Base delay of the exponential backoff between retries (seconds)
		RetryBaseDelay int `env:"WORKER_RETRY_BASE_DELAY" envDefault:"2"`

		// Wall-clock timeout for a single dedup pass (seconds)
		TaskTimeout int `env:"WORKER_TASK_TIMEOUT" envDefault:"30"`
	}

	// Queue configuration
	Queue struct {
		// Buffer size of the task channel
		BufferSize int `env:"QUEUE_BUFFER_SIZE" envDefault:"100"`

		// How long a listing stays marked in-flight before the guard
		// expires on its own (minutes)
		InFlightTTL int `env:"QUEUE_INFLIGHT_TTL" envDefault:"10"`
	}

	// Scheduler configuration
	Scheduler struct {
		// Cron spec of the pending-listing sweep
		SweepSpec string `env:"SCHEDULER_SWEEP_SPEC" envDefault:"@every 1m"`

		// Maximum listings enqueued per sweep
		SweepBatchSize int `env:"SCHEDULER_SWEEP_BATCH" envDefault:"200"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
