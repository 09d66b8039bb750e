// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config 是进程级配置。通过 Init 加载一次，之后用 GetCurrentConfig 读取。
type Config struct {
	App   AppConfig   `yaml:"app"`
	Infra InfraConfig `yaml:"infra"`
	Stock StockConfig `yaml:"stock"`
}

type AppConfig struct {
	HTTPPort    int `yaml:"httpPort"`
	WorkerPort  int `yaml:"workerPort"`
	GatewayPort int `yaml:"gatewayPort"`
}

type InfraConfig struct {
	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Nacos struct {
		ServerAddrs string `yaml:"serverAddrs"`
		Namespace   string `yaml:"namespace"`
		Group       string `yaml:"group"`
	} `yaml:"nacos"`
}

type StockConfig struct {
	Topics struct {
		Tasks   string `yaml:"tasks"`
		Results string `yaml:"results"`
		Events  string `yaml:"events"`
		DLT     string `yaml:"dlt"`
	} `yaml:"topics"`
	Consumer struct {
		GroupID string `yaml:"groupId"`
	} `yaml:"consumer"`
	Apply struct {
		MaxRetries  int `yaml:"maxRetries"`
		RetryBaseMS int `yaml:"retryBaseMs"`
	} `yaml:"apply"`
	Cache struct {
		TTLSeconds int `yaml:"ttlSeconds"`
	} `yaml:"cache"`
}

var (
	current Config
	cfgOnce sync.Once
)

// Init 加载配置：先取默认值，再用 CONFIG_FILE 指向的 YAML 覆盖，
// 最后用环境变量覆盖关键连接项。幂等，可在每个二进制的 main 里调用。
func Init() {
	cfgOnce.Do(func() {
		current = defaultConfig()

		path := getEnv("CONFIG_FILE", "config.yaml")
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &current); err != nil {
				log.Fatalf("FATAL: invalid config file %s: %v", path, err)
			}
			log.Printf("Config loaded from %s", path)
		} else if !os.IsNotExist(err) {
			log.Fatalf("FATAL: could not read config file %s: %v", path, err)
		}

		applyEnvOverrides(&current)
	})
}

// GetCurrentConfig 返回当前配置快照。
func GetCurrentConfig() Config {
	return current
}

func defaultConfig() Config {
	var c Config
	c.App.HTTPPort = 8083
	c.App.WorkerPort = 8084
	c.App.GatewayPort = 8088
	c.Infra.Mysql.DSN = "root:root@tcp(localhost:3306)/granary?charset=utf8mb4&parseTime=True&loc=UTC"
	c.Infra.Redis.Addr = "localhost:6379"
	c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	c.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	c.Infra.Nacos.ServerAddrs = "localhost:8848"
	c.Infra.Nacos.Group = "DEFAULT_GROUP"
	c.Stock.Topics.Tasks = "stock_queue"
	c.Stock.Topics.Results = "stock_results"
	c.Stock.Topics.Events = "stock_events"
	c.Stock.Topics.DLT = "stock_queue.dlt"
	c.Stock.Consumer.GroupID = "stock-worker-group"
	c.Stock.Apply.MaxRetries = 4
	c.Stock.Apply.RetryBaseMS = 20
	c.Stock.Cache.TTLSeconds = 30
	return c
}

func applyEnvOverrides(c *Config) {
	if v, ok := os.LookupEnv("MYSQL_DSN"); ok {
		c.Infra.Mysql.DSN = v
	}
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok {
		c.Infra.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		c.Infra.Jaeger.Endpoint = v
	}
	if v, ok := os.LookupEnv("NACOS_SERVER_ADDRS"); ok {
		c.Infra.Nacos.ServerAddrs = v
	}
	if v, ok := os.LookupEnv("NACOS_NAMESPACE"); ok {
		c.Infra.Nacos.Namespace = v
	}
	if v, ok := os.LookupEnv("NACOS_GROUP"); ok {
		c.Infra.Nacos.Group = v
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
