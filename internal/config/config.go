package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"notification/internal/lib/rabbitmq"

	"github.com/go-sql-driver/mysql"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkQueue = "queue"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Storage    StorageConfig    `yaml:"storage"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            int           `yaml:"port" env:"HTTP_PORT" env-default:"8000"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
	JWTSecret       string        `yaml:"jwt_secret" env:"HTTP_JWT_SECRET"`
}

type RabbitMQConfig struct {
	Host           string        `yaml:"host" env:"RABBITMQ_HOST" env-default:"rabbitmq"`
	Port           int           `yaml:"port" env:"RABBITMQ_PORT" env-default:"5672"`
	User           string        `yaml:"user" env:"RABBITMQ_USER" env-default:"guest"`
	Password       string        `yaml:"password" env:"RABBITMQ_PASSWORD" env-default:"guest"`
	VHost          string        `yaml:"vhost" env:"RABBITMQ_VHOST" env-default:"/"`
	Queue          string        `yaml:"queue" env:"RABBITMQ_QUEUE" env-default:"notification_events"`
	PoolSize       int           `yaml:"pool_size" env:"RABBITMQ_POOL_SIZE" env-default:"4"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"RABBITMQ_PUBLISH_TIMEOUT" env-default:"5s"`
	Prefetch       int           `yaml:"prefetch" env:"RABBITMQ_PREFETCH" env-default:"1"`
	ConsumerTag    string        `yaml:"consumer_tag" env:"RABBITMQ_CONSUMER_TAG"`
}

func (c RabbitMQConfig) URL() string {
	return rabbitmq.URL(c.Host, c.Port, c.User, c.Password, c.VHost)
}

type StorageConfig struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER" env-default:"pgx"`
	DSN      string `yaml:"dsn" env:"DB_DSN"`
	Host     string `yaml:"host" env:"DB_HOST" env-default:"db"`
	Port     int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	Name     string `yaml:"name" env:"DB_NAME" env-default:"notification_db"`
	User     string `yaml:"user" env:"DB_USER" env-default:"notiuser"`
	Password string `yaml:"password" env:"DB_PASSWORD" env-default:"notipassword"`
	SSLMode  string `yaml:"ssl_mode" env:"DB_SSLMODE" env-default:"disable"`

	// AutoMigrate applies the embedded schema when the consumer starts.
	AutoMigrate bool `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE"`
}

// DataSource returns DSN when set, otherwise builds one for Driver from the
// individual fields. For sqlite3 Name is the database file.
func (c StorageConfig) DataSource() string {
	if c.DSN != "" {
		return c.DSN
	}

	addr := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))

	switch c.Driver {
	case "sqlite3":
		return c.Name
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = addr
		mc.DBName = c.Name
		mc.ParseTime = true
		return mc.FormatDSN()
	default:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     addr,
			Path:     "/" + c.Name,
			RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
		}
		return u.String()
	}
}

type ConsumerConfig struct {
	PersistTimeout     time.Duration `yaml:"persist_timeout" env:"CONSUMER_PERSIST_TIMEOUT" env-default:"10s"`
	MaxAttempts        int           `yaml:"max_attempts" env:"CONSUMER_MAX_ATTEMPTS" env-default:"0"`
	BaseBackoff        time.Duration `yaml:"base_backoff" env:"CONSUMER_BASE_BACKOFF" env-default:"500ms"`
	MaxBackoff         time.Duration `yaml:"max_backoff" env:"CONSUMER_MAX_BACKOFF" env-default:"30s"`
	ResubscribeBackoff time.Duration `yaml:"resubscribe_backoff" env:"CONSUMER_RESUBSCRIBE_BACKOFF" env-default:"5s"`
	AttemptCacheSize   int           `yaml:"attempt_cache_size" env:"CONSUMER_ATTEMPT_CACHE_SIZE" env-default:"1048576"`
	AttemptTTL         time.Duration `yaml:"attempt_ttl" env:"CONSUMER_ATTEMPT_TTL" env-default:"1h"`
}

type DeadLetterConfig struct {
	Sink string `yaml:"sink" env:"DEAD_LETTER_SINK" env-default:"log"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"kafka:9092"`
	Topic       string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"notification_events.dead"`
	DialAddress string   `yaml:"dial_address" env:"KAFKA_DIAL_ADDRESS"`
}

type MetricsConfig struct {
	Host string `yaml:"host" env:"METRICS_HOST" env-default:"0.0.0.0"`
	Port int    `yaml:"port" env:"METRICS_PORT" env-default:"8082"`
}

func (c *Config) validate() error {
	switch c.DeadLetter.Sink {
	case SinkLog, SinkKafka, SinkQueue:
	default:
		return fmt.Errorf("unknown dead letter sink %q", c.DeadLetter.Sink)
	}
	if c.RabbitMQ.Queue == "" {
		return errors.New("rabbitmq queue must be set")
	}
	if c.Consumer.MaxAttempts < 0 {
		return errors.New("consumer max_attempts must not be negative")
	}
	// The log sink keeps nothing, so a retry budget would lose messages.
	if c.Consumer.MaxAttempts > 0 && c.DeadLetter.Sink == SinkLog {
		return errors.New("consumer max_attempts requires a kafka or queue dead letter sink")
	}
	return nil
}

func MustLoad() *Config {
	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return cfg
}

// Load reads the yaml file at configPath with environment overrides. An empty
// path reads the environment only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %q does not exist", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
