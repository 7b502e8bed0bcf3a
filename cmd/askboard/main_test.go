package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("ASKBOARD_HTTP_PORT", "99999")
	assert.Error(t, run())
}

func TestRun_MissingConfigFile(t *testing.T) {
	t.Setenv("ASKBOARD_CONFIG_FILE", "/nonexistent/askboard.json")
	assert.Error(t, run())
}
