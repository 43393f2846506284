package jobqueue

import "time"

// Config holds worker configuration sourced from the environment.
type Config struct {
	PollInterval   time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"1s"`
	ProcessTimeout time.Duration `env:"QUEUE_PROCESS_TIMEOUT" envDefault:"1m"`
	Concurrency    int           `env:"QUEUE_CONCURRENCY" envDefault:"5"`
}
