package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env           string              `yaml:"env"`
	HTTP          HTTPConfig          `yaml:"http"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Booking       BookingConfig       `yaml:"booking"`
	Worker        WorkerConfig        `yaml:"worker"`
	Inventory     InventoryConfig     `yaml:"inventory"`
	Notifications NotificationsConfig `yaml:"notifications"`
	SMTP          SMTPConfig          `yaml:"smtp"`
	Auth          AuthConfig          `yaml:"auth"`
	Log           LogConfig           `yaml:"log"`
}

type HTTPConfig struct {
	Address      string   `yaml:"address"`
	SwaggerDir   string   `yaml:"swagger_dir"`
	AllowOrigins []string `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type RabbitMQConfig struct {
	URL   string `yaml:"url"`
	Queue string `yaml:"queue"`
}

type BookingConfig struct {
	ReservationWindowMinutes int `yaml:"reservation_window_minutes"`
	FlightsCacheTTL          int `yaml:"flights_cache_ttl_seconds"`
}

func (b BookingConfig) ReservationWindow() time.Duration {
	return time.Duration(b.ReservationWindowMinutes) * time.Minute
}

func (b BookingConfig) FlightsCacheDuration() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

type WorkerConfig struct {
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes"`
	SweepConcurrency     int `yaml:"sweep_concurrency"`
	SweepLockSeconds     int `yaml:"sweep_lock_seconds"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.SweepIntervalMinutes) * time.Minute
}

func (w WorkerConfig) SweepLockTTL() time.Duration {
	return time.Duration(w.SweepLockSeconds) * time.Second
}

type InventoryConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func (i InventoryConfig) Timeout() time.Duration {
	return time.Duration(i.TimeoutMS) * time.Millisecond
}

const (
	NotifierKafka    = "kafka"
	NotifierRabbitMQ = "rabbitmq"
)

type NotificationsConfig struct {
	Driver    string `yaml:"driver"`
	Recipient string `yaml:"recipient"`
	Subject   string `yaml:"subject"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LoadConfig reads the YAML file at path, then applies environment overrides
// (including an optional .env file) and defaults.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTP.Address, "HTTP_ADDRESS")
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.RabbitMQ.URL, "RABBITMQ_URL")
	setString(&c.Inventory.BaseURL, "INVENTORY_BASE_URL")
	setString(&c.Auth.JWTSecret, "AUTH_JWT_SECRET")
	setString(&c.Notifications.Recipient, "NOTIFICATIONS_RECIPIENT")
	setString(&c.Log.Level, "LOG_LEVEL")
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Booking.ReservationWindowMinutes == 0 {
		c.Booking.ReservationWindowMinutes = 5
	}
	if c.Booking.FlightsCacheTTL == 0 {
		c.Booking.FlightsCacheTTL = 60
	}
	if c.Worker.SweepIntervalMinutes == 0 {
		c.Worker.SweepIntervalMinutes = 5
	}
	if c.Worker.SweepConcurrency == 0 {
		c.Worker.SweepConcurrency = 4
	}
	if c.Worker.SweepLockSeconds == 0 {
		c.Worker.SweepLockSeconds = 60
	}
	if c.Inventory.TimeoutMS == 0 {
		c.Inventory.TimeoutMS = 3000
	}
	if c.Notifications.Driver == "" {
		c.Notifications.Driver = NotifierKafka
	}
	if c.Notifications.Subject == "" {
		c.Notifications.Subject = "Flight booked"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	var problems []string
	if c.Booking.ReservationWindowMinutes < 0 {
		problems = append(problems, "booking.reservation_window_minutes must not be negative")
	}
	if c.Worker.SweepIntervalMinutes < 0 {
		problems = append(problems, "worker.sweep_interval_minutes must not be negative")
	}
	if c.Worker.SweepConcurrency < 0 {
		problems = append(problems, "worker.sweep_concurrency must not be negative")
	}
	if c.Inventory.TimeoutMS < 0 {
		problems = append(problems, "inventory.timeout_ms must not be negative")
	}
	switch {
	case c.Notifications.Recipient == "":
		problems = append(problems, "notifications.recipient is required")
	case strings.ContainsAny(c.Notifications.Recipient, "\r\n"):
		problems = append(problems, "notifications.recipient must be a single line")
	}
	if strings.ContainsAny(c.Notifications.Subject, "\r\n") {
		problems = append(problems, "notifications.subject must be a single line")
	}
	switch c.Notifications.Driver {
	case NotifierKafka, NotifierRabbitMQ:
	default:
		problems = append(problems, fmt.Sprintf("notifications.driver %q is not supported", c.Notifications.Driver))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
