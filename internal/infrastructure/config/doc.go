// Package config handles loading and validating crib agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (CRIB_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via environment variables
//   - TLS key material is referenced by path and never copied into the config
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
