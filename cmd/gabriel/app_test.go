package main

import (
	"context"
	"testing"

	"github.com/goliatone/go-logger/glog"
	"github.com/littlegabriel/gabriel/config"
	"github.com/littlegabriel/gabriel/health"
	"github.com/littlegabriel/gabriel/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	assert.Equal(t, glog.Debug, logLevel("DEBUG"))
	assert.Equal(t, glog.Warn, logLevel("warning"))
	assert.Equal(t, glog.Trace, logLevel(" trace "))
	assert.Equal(t, glog.Info, logLevel(""))
	assert.Equal(t, "ERROR", logLevel("error"))
}

func TestChecksWithoutDependencies(t *testing.T) {
	app := &App{
		config:  &config.Config{},
		logger:  newLogger(config.LogConfig{Level: "error"}),
		metrics: metrics.New(nil),
	}
	require.NoError(t, WithUpstreams(context.Background(), app))

	env := map[string]string{"NEXTAUTH_SECRET": "0123456789abcdef0123456789abcdef"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	checker := app.Checks(lookup)
	assert.NotContains(t, checker.Names(), health.CheckDatabase)

	report := checker.Run(context.Background())
	assert.True(t, report.Healthy())
	assert.Equal(t, health.StatusSkipped, report.Checks[health.CheckLLM].Status)
	assert.Equal(t, health.StatusSkipped, report.Checks[health.CheckBible].Status)
	assert.Equal(t, health.StatusSkipped, report.Checks[health.CheckRedis].Status)
	assert.Equal(t, health.StatusOK, report.Checks[health.CheckEnv].Status)
}

func TestRevocationFallsBackToMemory(t *testing.T) {
	app := &App{
		config: &config.Config{},
		logger: newLogger(config.LogConfig{Level: "error"}),
	}
	require.NoError(t, WithRevocation(context.Background(), app))
	assert.Nil(t, app.redis)
	assert.NotNil(t, app.revoker)
}
