package config

import "time"

type Config struct {
	Service     *ServiceConfig
	Redis       *RedisConfig
	Postgres    *PostgresConfig
	Worker      *WorkerConfig
	Logger      *LoggerConfig
	Tracer      *TracerConfig
	Presence    *PresenceConfig
	Chat        *ChatConfig
	SecretToken string
}

type ServiceConfig struct {
	Name string
	Env  string
	Add  string
	// AllowedOrigins lists the browser origins that may open /ws. "*"
	// allows any; empty keeps the same-host check.
	AllowedOrigins []string
	// EventsSecret is the service credential for POST /internal/events.
	// The route is not mounted without it.
	EventsSecret string
}

type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
	PingTimeout  time.Duration
	ProfileTTL   time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

type WorkerConfig struct {
	Enabled     bool
	EventStream string
	EventGroup  string
	ClaimIdle   time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type TracerConfig struct {
	Enabled bool
	Address string
}

// PresenceConfig holds the idle threshold and sweep cadence. Neither value
// is derived from the other.
type PresenceConfig struct {
	IdleThreshold time.Duration
	SweepInterval time.Duration
	RecentLimit   int
}

type ChatConfig struct {
	DefaultChannel string
	BotUserID      string
	WelcomeText    string
}
