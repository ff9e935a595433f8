package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env            string         `yaml:"env" env-default:"local"`
	AppSecret      string         `yaml:"app_secret" env:"APP_SECRET"`
	InternalAPIKey string         `yaml:"internal_api_key" env:"INTERNAL_API_KEY"`
	TokenTTL       time.Duration  `yaml:"token_ttl" env-default:"1h"`
	HTTP           HTTPConfig     `yaml:"http"`
	Worker         WorkerConfig   `yaml:"worker"`
	Storage        StorageConfig  `yaml:"storage"`
	Realtime       RealtimeConfig `yaml:"realtime"`
}

type HTTPConfig struct {
	Host         string        `yaml:"host" env-default:"0.0.0.0"`
	Port         int           `yaml:"port" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env-default:"5s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env-default:"5s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type WorkerConfig struct {
	BaseURL string        `yaml:"base_url" env:"WORKER_BASE_URL" env-default:"http://worker:8082"`
	Timeout time.Duration `yaml:"timeout" env-default:"5s"`
}

type StorageConfig struct {
	Path string `yaml:"path" env:"STORAGE_PATH" env-default:"data/argus.db"`
}

type RealtimeConfig struct {
	SendBuffer     int           `yaml:"send_buffer" env-default:"16"`
	PingInterval   time.Duration `yaml:"ping_interval" env-default:"30s"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
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
