package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/sakashimaa/go-fulfillment/pkg/utils"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http"`
	Postgres PG       `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`
	Kafka    Kafka    `yaml:"kafka"`
	Provider Provider `yaml:"provider"`
	Webhook  Webhook  `yaml:"webhook"`
	Auth     Auth     `yaml:"auth"`
}

type Auth struct {
	AdminSecret string `yaml:"admin_secret" env:"ADMIN_JWT_SECRET"`
}

type HTTP struct {
	Port        string        `yaml:"port" env:"HTTP_PORT" env-default:":3000"`
	MetricsPort string        `yaml:"metrics_port" env:"METRICS_PORT" env-default:":9091"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Redis struct {
	Addr    string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	CartTTL time.Duration `yaml:"cart_ttl" env:"CART_TTL" env-default:"24h"`
}

type Kafka struct {
	Brokers           string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	NotificationTopic string `yaml:"notification_topic" env:"NOTIFICATION_TOPIC" env-default:"notification_events"`
}

type Provider struct {
	BaseURL string        `yaml:"base_url" env:"PROVIDER_BASE_URL"`
	APIKey  string        `yaml:"api_key" env:"PROVIDER_API_KEY"`
	Timeout time.Duration `yaml:"timeout" env-default:"3s"`
}

type Webhook struct {
	Secret       string `yaml:"secret" env:"WEBHOOK_SECRET"`
	AllowedCIDRs string `yaml:"allowed_cidrs" env:"WEBHOOK_ALLOWED_CIDRS"`
}

func (k Kafka) BrokerList() []string {
	return strings.Split(k.Brokers, ",")
}

func (w Webhook) CIDRList() []string {
	if w.AllowedCIDRs == "" {
		return nil
	}

	parts := strings.Split(w.AllowedCIDRs, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

func MustLoad() *Config {
	configPath := utils.ParseWithFallback("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}
