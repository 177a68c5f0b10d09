package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Client     ClientConfig     `mapstructure:"client"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Conditions ConditionsConfig `mapstructure:"conditions"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	AuthToken   string   `mapstructure:"auth_token"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type ClientConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	ClientID    string `mapstructure:"client_id"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
}

type ConditionsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"`

	// open-meteo
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`

	// modbus sensor
	SensorIP            string        `mapstructure:"sensor_ip"`
	SensorPort          int           `mapstructure:"sensor_port"`
	SensorSlaveID       uint8         `mapstructure:"sensor_slave_id"`
	SensorTimeout       time.Duration `mapstructure:"sensor_timeout"`
	TemperatureRegister uint16        `mapstructure:"temperature_register"`
	TemperatureScale    float64       `mapstructure:"temperature_scale"`
	IrradianceRegister  uint16        `mapstructure:"irradiance_register"`
	IrradianceScale     float64       `mapstructure:"irradiance_scale"`
}

func Load(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pv-emulator")
	}

	// Set defaults
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.auth_token", "")
	viper.SetDefault("server.cors_origins", []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
		"http://localhost:3001",
	})
	viper.SetDefault("database.path", "./pv-emulator.db")
	viper.SetDefault("client.base_url", "http://localhost:8000")
	viper.SetDefault("client.token", "")
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic_prefix", "pv-emulator")
	viper.SetDefault("mqtt.client_id", "pv-emulator")
	viper.SetDefault("conditions.enabled", false)
	viper.SetDefault("conditions.provider", "openmeteo")
	viper.SetDefault("conditions.latitude", 0)
	viper.SetDefault("conditions.longitude", 0)
	viper.SetDefault("conditions.sensor_port", 502)
	viper.SetDefault("conditions.sensor_slave_id", 1)
	viper.SetDefault("conditions.sensor_timeout", "10s")
	viper.SetDefault("conditions.temperature_register", 0)
	viper.SetDefault("conditions.temperature_scale", 0.1)
	viper.SetDefault("conditions.irradiance_register", 1)
	viper.SetDefault("conditions.irradiance_scale", 1.0)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
