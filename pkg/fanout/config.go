package fanout

import "time"

// Config holds fan-out settings loaded from the environment.
type Config struct {
	BusChannel    string        `env:"FANOUT_BUS_CHANNEL" envDefault:"notify:fanout"`
	SessionBuffer int           `env:"FANOUT_SESSION_BUFFER" envDefault:"64"`
	IdleTimeout   time.Duration `env:"FANOUT_IDLE_TIMEOUT" envDefault:"60s"`
	WriteTimeout  time.Duration `env:"FANOUT_WRITE_TIMEOUT" envDefault:"10s"`
}
