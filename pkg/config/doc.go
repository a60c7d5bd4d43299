// Package config loads maintlog settings.
//
// Settings come from maintlog.yaml in the working directory or the data
// directory, or from the file named with --config. Every key can be
// overridden from the environment with the MAINTLOG_ prefix, dots replaced
// by underscores:
//
//	MAINTLOG_PROJECT="2. Acme"
//	MAINTLOG_STORAGE_ALLOW_NON_ATOMIC=false
//	MAINTLOG_TELEMETRY_LOG_LEVEL=debug
//
// Relative file and directory settings resolve against data_dir.
package config
