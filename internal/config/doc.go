// Package config loads the configuration of the device simulator.
//
// The configuration is a YAML (or JSON) file read with viper. Every value can
// be overridden from the environment with the TUYALOCAL_SIM_ prefix, for
// example TUYALOCAL_SIM_LISTEN_PORT=7000.
//
// # Configuration File Location
//
// When no path is given, simulator.yaml is searched in the working directory
// and then in:
//   - Linux: $XDG_CONFIG_HOME/tuyalocal or $HOME/.config/tuyalocal
//   - macOS: $HOME/.config/tuyalocal
//   - Windows: %LOCALAPPDATA%\tuyalocal
//
// # Example
//
//	version: 1
//	listen:
//	  host: 127.0.0.1
//	  port: 6668
//	behavior:
//	  dropFirst: 0
//	  responseDelay: 50ms
//	devices:
//	  - id: bf0000000000000000aa
//	    key: 0123456789abcdef
//	    dps:
//	      "1": false
//
// Save writes a configuration atomically (temporary file, then rename).
package config
