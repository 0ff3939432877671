// Package config provides configuration loading and validation for services
// that embed REST clients.
//
// It uses Viper to load configuration from files and environment variables,
// layered with godotenv for .env files. A typical service config embeds
// ServiceConfig and adds client sections:
//
//	type AppConfig struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Payments restclient.Configuration `yaml:"payments" mapstructure:"payments"`
//	}
//
//	var cfg AppConfig
//	err := config.LoadConfig("billing", &cfg)
//
// Environment variables override file values using underscore-separated
// paths (e.g., PAYMENTS_TIMEOUT).
package config
