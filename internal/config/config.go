package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	viper "github.com/spf13/viper"
)

/*
init 與 read 分開
init: 設置 viper 預設值、讀 .env、掛 watch 與 onConfigChange
read: 一般讀取，走讀寫鎖
沒有 .env 檔也能跑，直接吃環境變數與預設值
*/
var configSingleton *ConfigSingleTon
var muonce sync.Once

type ConfigSingleTon struct {
	Config *Config
	mu     sync.RWMutex
}

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	LogLevel   string `mapstructure:"LOG_LEVEL"`

	DbHost string `mapstructure:"POSTGRES_HOST"`
	DbPort string `mapstructure:"POSTGRES_PORT"`
	DbUser string `mapstructure:"POSTGRES_USER"`
	DbPas  string `mapstructure:"POSTGRES_PASSWORD"`
	DbName string `mapstructure:"POSTGRES_DB"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers         string `mapstructure:"KAFKA_BROKERS"`
	OrderEventTopic      string `mapstructure:"ORDER_EVENT_TOPIC"`
	OrderEventPartitions int    `mapstructure:"ORDER_EVENT_PARTITIONS"`
	PaymentEventTopic    string `mapstructure:"PAYMENT_EVENT_TOPIC"`
	PaymentConsumerGroup string `mapstructure:"PAYMENT_CONSUMER_GROUP"`

	WebhookSecret     string `mapstructure:"WEBHOOK_SECRET"`
	SessionTTLMinutes int    `mapstructure:"SESSION_TTL_MINUTES"`
}

// Brokers KAFKA_BROKERS 逗號分隔轉 slice
func (c *Config) Brokers() []string {
	parts := strings.Split(c.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if broker := strings.TrimSpace(part); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func GetConfig() *Config {
	initConfig()
	configSingleton.mu.RLock()
	defer configSingleton.mu.RUnlock()
	return configSingleton.Config
}

func initConfig() {
	if configSingleton == nil {
		muonce.Do(func() {
			configSingleton = &ConfigSingleTon{}
			setDefaults()

			viper.SetConfigFile(envFilePath())
			viper.SetConfigType("env")
			viper.AutomaticEnv()

			watch := true
			if err := viper.ReadInConfig(); err != nil {
				watch = false
				log.Debug().Err(err).Msg("no env file loaded, use environment and defaults")
			}

			if cf, err := loadConfig(); err == nil {
				configSingleton.Config = cf
			} else {
				log.Fatal().Err(err).Msg("read config failed")
			}

			if watch {
				viper.WatchConfig()
				viper.OnConfigChange(func(e fsnotify.Event) {
					if cf, err := loadConfig(); err == nil {
						configSingleton.Config = cf
					} else {
						log.Error().Err(err).Msg("reload config file failed, keep old config")
					}
				})
			}
		})
	}
}

/*
單純回傳錯誤，由外部決定要不要 Fatal
*/
func loadConfig() (cf *Config, err error) {
	configSingleton.mu.Lock()
	defer configSingleton.mu.Unlock()

	cf = &Config{}
	err = viper.Unmarshal(cf)
	if err != nil {
		return
	}
	return
}

// 每個 key 都要有預設值，AutomaticEnv 的覆寫才會被 Unmarshal 看到
func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", "5432")
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "")
	viper.SetDefault("POSTGRES_DB", "storefront")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("KAFKA_BROKERS", "localhost:9092")
	viper.SetDefault("ORDER_EVENT_TOPIC", "storefront.order.events")
	viper.SetDefault("ORDER_EVENT_PARTITIONS", 4)
	viper.SetDefault("PAYMENT_EVENT_TOPIC", "storefront.payment.events")
	viper.SetDefault("PAYMENT_CONSUMER_GROUP", "storefront-payment")
	viper.SetDefault("WEBHOOK_SECRET", "")
	viper.SetDefault("SESSION_TTL_MINUTES", 7*24*60)
}

func envFilePath() string {
	if path := os.Getenv("STOREFRONT_ENV"); path != "" {
		return path
	}
	return ".env"
}
