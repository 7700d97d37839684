package mongodb

import (
	"os"

	"gopkg.in/yaml.v3"
)

type MongoConfig struct {
	Host       string `yaml:"host"`
	DBName     string `yaml:"dbname"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"authSource"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

type Config struct {
	Mongo  MongoConfig  `yaml:"mongo"`
	HTTP   HTTPConfig   `yaml:"http"`
	Notify NotifyConfig `yaml:"notify"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = ":8080"
	}
	return &cfg, nil
}

// applyEnv lets deployment env vars (including a loaded .env) override the
// yaml file, so credentials stay out of the checked-in config.
func (c *Config) applyEnv() {
	if v := os.Getenv("MONGO_HOST"); v != "" {
		c.Mongo.Host = v
	}
	if v := os.Getenv("MONGO_DBNAME"); v != "" {
		c.Mongo.DBName = v
	}
	if v := os.Getenv("MONGO_USERNAME"); v != "" {
		c.Mongo.Username = v
	}
	if v := os.Getenv("MONGO_PASSWORD"); v != "" {
		c.Mongo.Password = v
	}
	if v := os.Getenv("MONGO_AUTH_SOURCE"); v != "" {
		c.Mongo.AuthSource = v
	}
	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("NOTIFY_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
}
