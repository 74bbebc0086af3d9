package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters(t *testing.T) {
	t.Parallel()

	filters, err := parseFilters([]string{"os=linux", "active=true", "collector="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"os": "linux", "active": "true", "collector": ""}, filters)

	filters, err = parseFilters(nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	_, err = parseFilters([]string{"linux"})
	assert.Error(t, err)
	_, err = parseFilters([]string{"=linux"})
	assert.Error(t, err)
}

func TestParseTargets(t *testing.T) {
	t.Parallel()

	targets, err := parseTargets([]string{"s-1:filebeat,winlogbeat", "s-2:auditbeat", "s-1:nxlog"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"s-1": {"filebeat", "winlogbeat", "nxlog"},
		"s-2": {"auditbeat"},
	}, targets)

	_, err = parseTargets(nil)
	assert.Error(t, err)
	_, err = parseTargets([]string{"s-1"})
	assert.Error(t, err)
	_, err = parseTargets([]string{":filebeat"})
	assert.Error(t, err)
}
