package proxy_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proton/internal/proxy"
)

func TestDirectClient(t *testing.T) {
	c, err := proxy.NewSocksClient("", 0)
	require.NoError(t, err)
	assert.Nil(t, c.Transport)
	assert.Equal(t, 120*time.Second, c.Timeout)
}

func TestSocksClient(t *testing.T) {
	c, err := proxy.NewSocksClient("127.0.0.1:1080", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &http.Transport{}, c.Transport)
	assert.Equal(t, time.Second, c.Timeout)
}
