package config

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/paybridge/paybridge/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Fluidpay   FluidpayConfig
	Pathly     PathlyConfig
	WorldNetV2 WorldNetV2Config
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

// FluidpayConfig holds the Fluidpay credential. The api key is sent
// verbatim in the Authorization header of every request.
type FluidpayConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// PathlyConfig holds the Pathly credentials used by the token login call.
type PathlyConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	MerchantID string `mapstructure:"merchant_id"`
}

// WorldNetV2Config holds the WorldNet merchant api key used as Basic
// auth by the token login call.
type WorldNetV2Config struct {
	MerchantAPIKey string `mapstructure:"merchant_api_key"`
}

func NewConfig() (*Configuration, error) {
	// Local development reads credentials from a .env file when present.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paybridge")

	v.SetEnvPrefix("PAYBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeTest},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
	}
}
