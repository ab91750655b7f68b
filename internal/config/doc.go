// Package config loads the harbor configuration.
//
// Configuration is read from config.yaml in a single directory (default
// ~/.config/roboharbor, overridable with --config-path). Missing files fall
// back to defaults. A .env file in the working directory or the config
// directory is loaded into the environment first, and a handful of
// environment variables override file values:
//
//   - ROBO_SECRET: shared secret robots present when connecting
//   - ROBOHARBOR_NAMESPACE: namespace workloads are created in
//   - DATABASE_URL: DSN of the postgres image catalog
//   - DEV_KUBERNETES=development: print manifests instead of submitting them
//
// Example config.yaml:
//
//	namespace: robots
//	harbor:
//	  listenAddress: ":5001"
//	  publicAddress: "roboharbor.robots.svc:5001"
//	timeouts:
//	  registration: 60s
//	  response: 60s
//	catalog:
//	  driver: file
//	  path: /etc/roboharbor/images.yaml
package config
