// Package config loads cellkit CLI configuration.
//
// Configuration is read with viper from cellkit.yaml, cellkit.json or
// cellkit.toml in the working directory or the user config directory, or
// from an explicit --config path. Every key can be overridden from the
// environment with the CELLKIT_ prefix, dots replaced by underscores
// (CELLKIT_INSPECT_ADDR for inspect.addr).
//
// # Configuration File Structure
//
//	log:
//	  level: info
//	  format: text
//	loop:
//	  queue_size: 1024
//	inspect:
//	  addr: 127.0.0.1:7070
//	  allow_any_origin: false
//	  write_timeout: 10s
//	  ping_interval: 30s
//	  send_buffer: 64
//	metrics:
//	  enabled: true
//	  namespace: cellkit
//	  path: /metrics
//	tracing:
//	  enabled: false
//	snapshot:
//	  target: ./snapshots       # or s3://bucket/prefix
//	  key: demo
//	  format: json
//	  interval: 0s
//	s3:
//	  region: us-east-1
//	  endpoint: http://localhost:9000
//	  path_style: true
//
// # Usage
//
//	l := config.NewLoader()
//	_ = l.BindFlag("log.level", cmd.Flags().Lookup("log-level"))
//	cfg, err := l.Load(path)
package config
