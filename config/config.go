package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Websocket  WebsocketConfig  `mapstructure:"websocket"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Room       RoomConfig       `mapstructure:"room"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	Password        string `mapstructure:"password"`
	DB              int    `mapstructure:"db"`
	PoolSize        int    `mapstructure:"pool_size"`
	MinIdleConns    int    `mapstructure:"min_idle_conns"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

type RateLimitConfig struct {
	APIPerMinute  int  `mapstructure:"api_per_minute"`
	JoinPerMinute int  `mapstructure:"join_per_minute"`
	FailOpen      bool `mapstructure:"fail_open"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

// WebsocketConfig 时间单位为秒
type WebsocketConfig struct {
	WriteWait      int   `mapstructure:"write_wait"`
	PongWait       int   `mapstructure:"pong_wait"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	SendBuffer     int   `mapstructure:"send_buffer"`
}

type AuthConfig struct {
	IdentityHeader    string `mapstructure:"identity_header"`
	NameHeader        string `mapstructure:"name_header"`
	BotKeyHash        string `mapstructure:"bot_key_hash"` // bcrypt hash, empty disables the check
	TicketSecret      string `mapstructure:"ticket_secret"`
	TicketTTLSeconds  int    `mapstructure:"ticket_ttl_seconds"`
	RequireMembership bool   `mapstructure:"require_membership"`
}

type RoomConfig struct {
	InviteCodeLength int `mapstructure:"invite_code_length"`
	InviteMaxRetries int `mapstructure:"invite_max_retries"`
}

// setDefaults 所有 key 都需要默认值，否则 AutomaticEnv 在 Unmarshal 时不会生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "shopping")
	v.SetDefault("postgres.max_idle_conns", 10)
	v.SetDefault("postgres.max_open_conns", 50)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.cache_ttl_seconds", 3600)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "room-events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")

	v.SetDefault("ratelimit.api_per_minute", 120)
	v.SetDefault("ratelimit.join_per_minute", 10)
	v.SetDefault("ratelimit.fail_open", true)

	v.SetDefault("worker_pool.size", 4)
	v.SetDefault("worker_pool.queue_size", 1024)

	v.SetDefault("websocket.write_wait", 10)
	v.SetDefault("websocket.pong_wait", 60)
	v.SetDefault("websocket.max_message_size", 512)
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("auth.identity_header", "telegram-id")
	v.SetDefault("auth.name_header", "telegram-username")
	v.SetDefault("auth.bot_key_hash", "")
	v.SetDefault("auth.ticket_secret", "")
	v.SetDefault("auth.ticket_ttl_seconds", 300)
	v.SetDefault("auth.require_membership", true)

	v.SetDefault("room.invite_code_length", 8)
	v.SetDefault("room.invite_max_retries", 5)
}

// LoadConfig 读取配置文件并叠加环境变量 (SHOPPING_POSTGRES_HOST 等)。
// path 为空或文件不存在时只使用默认值与环境变量。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("shopping")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 校验无法运行的配置组合
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.Room.InviteCodeLength < 6 || c.Room.InviteCodeLength > 32 {
		return fmt.Errorf("room.invite_code_length must be within 6..32, got %d", c.Room.InviteCodeLength)
	}
	if c.Room.InviteMaxRetries < 1 {
		return fmt.Errorf("room.invite_max_retries must be positive, got %d", c.Room.InviteMaxRetries)
	}
	if c.Auth.IdentityHeader == "" {
		return errors.New("auth.identity_header must not be empty")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers must be set when kafka is enabled")
	}
	if c.Websocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.send_buffer must be positive, got %d", c.Websocket.SendBuffer)
	}
	return nil
}
