// Package config handles loading and validating showloop configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SHOWLOOP_* environment variables
//   - Validation of required fields (all errors reported together)
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret has no default and must be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Player.Name, cfg.GetQuantum())
package config
