// Package config handles loading and validating mfersafe supervisor configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with MFERSAFE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// The node's own argument set (addresses, endpoints, chain id) is not part of
// this file. It lives in the JSON record handled by package nodeconfig so the
// desktop shell and the supervisor can share it.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Leaving security.jwt.secret empty disables API auth; keep api.host on loopback then
//
// Usage:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Supervisor.Sidecar)
package config
