package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseIPv4(t *testing.T) {
	ip, err := parseIPv4("10.0.0.2")
	require.NoError(t, err)
	require.Equal(t, [4]byte{10, 0, 0, 2}, ip)

	_, err = parseIPv4("garbage")
	require.Error(t, err)
}
