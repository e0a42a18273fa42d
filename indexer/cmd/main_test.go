package main

import (
	"bytes"
	"testing"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-dexgraph/indexer/config"
)

func TestBuildServerConfig(t *testing.T) {
	cfg := &config.ServerConfig{
		Port:                  8080,
		Host:                  "0.0.0.0",
		AllowedOrigins:        []string{"*"},
		RatePerMinute:         120,
		MaxConcurrentRequests: 0,
		UsePrometheus:         true,
	}

	serverConfig := buildServerConfig(cfg)
	assert.Equal(t, serverConfig.Address, "0.0.0.0:8080")
	assert.True(t, serverConfig.EnableMetrics)
	assert.Equal(t, *serverConfig.RatePerMinute, 120)
	assert.Nil(t, serverConfig.MaxConcurrentRequests)
	assert.NotNil(t, serverConfig.OTelConfig)
	assert.Equal(t, serverConfig.OTelConfig.ServiceName, "spectra-dexgraph")
	assert.Equal(t, serverConfig.OTelConfig.Environment, "development")

	serverConfig = buildServerConfig(&config.ServerConfig{Port: 80, Host: "::1"})
	assert.Equal(t, serverConfig.Address, "[::1]:80")
	assert.Nil(t, serverConfig.OTelConfig)
}

func TestValidateCommand(t *testing.T) {
	root := rootCommand()
	root.SetArgs([]string{"validate", "--registry", "../config/testdata/registry.toml"})
	assert.NoError(t, root.Execute())

	root = rootCommand()
	root.SetArgs([]string{"validate", "--registry", "../config/testdata/missing.toml"})
	assert.Error(t, root.Execute())
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	assert.NoError(t, root.Execute())
	assert.Equal(t, out.String(), Version+"\n")
}
