// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Orders    OrdersConfig    `yaml:"orders"`
	Margin    MarginConfig    `yaml:"margin"`
	System    SystemConfig    `yaml:"system"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BrokerConfig contains brokerage session settings. Credentials are consumed
// by the excluded session layer; only the account scope is used here.
type BrokerConfig struct {
	Provider      string `yaml:"provider"` // "paper" or a real brokerage client
	Username      string `yaml:"username"`
	Password      Secret `yaml:"password"`
	AccountNumber string `yaml:"account_number"`
	Sandbox       bool   `yaml:"sandbox"`
}

// StrategyConfig contains the condor selection parameters
type StrategyConfig struct {
	UnderlyingSymbol  string  `yaml:"underlying_symbol"`  // streamer symbol of the underlying
	RootSymbol        string  `yaml:"root_symbol"`        // option chain root
	SearchInterval    float64 `yaml:"search_interval"`    // strike window around the reference price
	PriceThreshold    float64 `yaml:"price_threshold"`    // max premium to sell
	InsuranceOffset   float64 `yaml:"insurance_offset"`   // strike distance of the protective leg
	RebuildIntervalMs int     `yaml:"rebuild_interval_ms"`
	ExpirationDays    int     `yaml:"expiration_days"` // days from today to the traded expiration
}

// OrdersConfig contains order submission parameters
type OrdersConfig struct {
	OpenLimitPrice     float64 `yaml:"open_limit_price"`  // credit collected on open
	CloseLimitPrice    float64 `yaml:"close_limit_price"` // debit paid on close (negative)
	Quantity           int     `yaml:"quantity"`          // contracts per leg
	FillPollIntervalMs int     `yaml:"fill_poll_interval_ms"`
	RateLimit          float64 `yaml:"rate_limit"` // submissions per second
	RateBurst          int     `yaml:"rate_burst"`
}

// MarginConfig contains the margin estimator cadence
type MarginConfig struct {
	RefreshIntervalMs int `yaml:"refresh_interval_ms"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills the timing knobs the source hardcoded
func (c *Config) applyDefaults() {
	if c.Strategy.RebuildIntervalMs == 0 {
		c.Strategy.RebuildIntervalMs = 3000
	}
	if c.Strategy.ExpirationDays == 0 {
		c.Strategy.ExpirationDays = 1
	}
	if c.Orders.Quantity == 0 {
		c.Orders.Quantity = 1
	}
	if c.Orders.FillPollIntervalMs == 0 {
		c.Orders.FillPollIntervalMs = 200
	}
	if c.Orders.RateLimit == 0 {
		c.Orders.RateLimit = 5
	}
	if c.Orders.RateBurst == 0 {
		c.Orders.RateBurst = 5
	}
	if c.Margin.RefreshIntervalMs == 0 {
		c.Margin.RefreshIntervalMs = 300
	}
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateBrokerConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateStrategyConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateOrdersConfig(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateBrokerConfig() error {
	validProviders := []string{"paper", "tastytrade"}
	if !contains(validProviders, c.Broker.Provider) {
		return ValidationError{
			Field:   "broker.provider",
			Value:   c.Broker.Provider,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validProviders, ", ")),
		}
	}

	if c.Broker.Provider != "paper" {
		if c.Broker.Username == "" {
			return ValidationError{
				Field:   "broker.username",
				Message: "username is required",
			}
		}
		if c.Broker.Password == "" {
			return ValidationError{
				Field:   "broker.password",
				Message: "password is required",
			}
		}
	}

	if c.Broker.AccountNumber == "" {
		return ValidationError{
			Field:   "broker.account_number",
			Message: "account number is required",
		}
	}

	return nil
}

func (c *Config) validateStrategyConfig() error {
	if c.Strategy.UnderlyingSymbol == "" {
		return ValidationError{
			Field:   "strategy.underlying_symbol",
			Message: "underlying symbol is required",
		}
	}
	if c.Strategy.RootSymbol == "" {
		return ValidationError{
			Field:   "strategy.root_symbol",
			Message: "option root symbol is required",
		}
	}
	if c.Strategy.SearchInterval <= 0 {
		return ValidationError{
			Field:   "strategy.search_interval",
			Value:   c.Strategy.SearchInterval,
			Message: "search interval must be positive",
		}
	}
	if c.Strategy.PriceThreshold <= 0 {
		return ValidationError{
			Field:   "strategy.price_threshold",
			Value:   c.Strategy.PriceThreshold,
			Message: "price threshold must be positive",
		}
	}
	if c.Strategy.InsuranceOffset <= 0 {
		return ValidationError{
			Field:   "strategy.insurance_offset",
			Value:   c.Strategy.InsuranceOffset,
			Message: "insurance offset must be positive",
		}
	}
	return nil
}

func (c *Config) validateOrdersConfig() error {
	if c.Orders.Quantity < 1 {
		return ValidationError{
			Field:   "orders.quantity",
			Value:   c.Orders.Quantity,
			Message: "quantity must be at least one contract",
		}
	}
	if c.Orders.CloseLimitPrice > 0 {
		return ValidationError{
			Field:   "orders.close_limit_price",
			Value:   c.Orders.CloseLimitPrice,
			Message: "closing a condor is a debit; the limit must be zero or negative",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration with
// credentials masked.
func (c *Config) String() string {
	configCopy := *c
	configCopy.Broker.Username = maskString(configCopy.Broker.Username)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	cfg := &Config{
		Broker: BrokerConfig{
			Provider:      "paper",
			AccountNumber: "5WT00000",
			Sandbox:       true,
		},
		Strategy: StrategyConfig{
			UnderlyingSymbol: "SPX",
			RootSymbol:       "SPXW",
			SearchInterval:   500,
			PriceThreshold:   3.5,
			InsuranceOffset:  30,
		},
		Orders: OrdersConfig{
			OpenLimitPrice:  0.05,
			CloseLimitPrice: -0.05,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: false,
		},
	}
	cfg.applyDefaults()
	return cfg
}
