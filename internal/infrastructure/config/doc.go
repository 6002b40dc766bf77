// Package config handles loading and validating glowmarkt-logger configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env file into the environment
//   - Overriding with GLOWLOGGER_* environment variables
//   - Applying command-line overrides
//   - Validation of required fields
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Apply(config.Overrides{Topic: "glow/ABC/SENSOR/electricitymeter"})
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
