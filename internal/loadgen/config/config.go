// Package config holds the load generator's run parameters, grounded on
// the teacher's perf-test/internal/config.Config (flat CLI-driven struct,
// no env vars) rather than the core's own environment-driven config.Config.
package config

import "time"

type Config struct {
	APIURL     string
	Workers    int
	Duration   time.Duration
	RampUp     time.Duration
	ReportPath string
}
