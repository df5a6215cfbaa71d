// Package config loads relay settings from the environment.
//
// Values come from, in order of precedence:
//   - command line flags (applied by the caller)
//   - the process environment
//   - an optional .env file
//   - the defaults declared on Config
//
// Listener settings (host, port, backlog) are read once at startup; there is
// no runtime reconfiguration.
//
// Usage:
//
//	cfg, err := config.Load(".env")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(cfg.Addr()) // 0.0.0.0:3000
package config
