package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rocrail/rcp"
)

func TestConnectionConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", 8051)
	require.NoError(err)

	require.Equal("127.0.0.1", cfg.Host())
	require.Equal(8051, cfg.Port())
	require.Equal(10*time.Second, cfg.ConnectTimeout())
	require.Equal(10*time.Second, cfg.QueryTimeout())
	require.Equal(30*time.Second, cfg.QueryInterval())
	require.NotNil(cfg.Logger())

	require.Equal(3, cfg.fastRetryCount)
	require.Equal(3*time.Second, cfg.fastRetryDelay)
	require.Equal(8*time.Second, cfg.slowRetryDelay)
	require.Equal(40, cfg.cooldownAfter)
	require.Equal(60*time.Second, cfg.cooldownDelay)
	require.Equal(3, cfg.readErrorThreshold)
	require.Equal(rcp.DefaultBufferLimit, cfg.bufferLimit)
	require.Equal(rcp.DefaultMaxPacket, cfg.maxPacket)
	require.Empty(cfg.defaultLocoID)
}

func TestConnectionConfigOptions(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConnectionConfig("127.0.0.1", 8051,
		WithConnectTimeout(5*time.Second),
		WithCloseConnTimeout(2*time.Second),
		WithWriteTimeout(1*time.Second),
		WithFastRetry(5, 2*time.Second),
		WithSlowRetryDelay(12*time.Second),
		WithCooldown(20, 30*time.Second),
		WithSettleDelay(2*time.Second),
		WithQueryTimeout(5*time.Second),
		WithQueryInterval(15*time.Second),
		WithReadErrorThreshold(5),
		WithBufferLimit(32768),
		WithMaxPacket(4096),
		WithDefaultLoco("BR103"),
	)
	require.NoError(err)

	require.Equal(5*time.Second, cfg.connectTimeout)
	require.Equal(2*time.Second, cfg.closeConnTimeout)
	require.Equal(1*time.Second, cfg.writeTimeout)
	require.Equal(5, cfg.fastRetryCount)
	require.Equal(2*time.Second, cfg.fastRetryDelay)
	require.Equal(12*time.Second, cfg.slowRetryDelay)
	require.Equal(20, cfg.cooldownAfter)
	require.Equal(30*time.Second, cfg.cooldownDelay)
	require.Equal(2*time.Second, cfg.settleDelay)
	require.Equal(5*time.Second, cfg.queryTimeout)
	require.Equal(15*time.Second, cfg.queryInterval)
	require.Equal(5, cfg.readErrorThreshold)
	require.Equal(32768, cfg.bufferLimit)
	require.Equal(4096, cfg.maxPacket)
	require.Equal("BR103", cfg.defaultLocoID)
}

func TestConnectionConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		opts []ConnOption
	}{
		{name: "invalid host", host: "...", port: 8051},
		{name: "port out of range", host: "127.0.0.1", port: 70000},
		{name: "connect timeout too short", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithConnectTimeout(time.Millisecond)}},
		{name: "connect timeout too long", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithConnectTimeout(time.Minute)}},
		{name: "negative fast retry count", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithFastRetry(-1, time.Second)}},
		{name: "zero fast retry delay", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithFastRetry(3, 0)}},
		{name: "zero slow retry delay", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithSlowRetryDelay(0)}},
		{name: "negative cooldown", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithCooldown(-1, time.Second)}},
		{name: "zero query timeout", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithQueryTimeout(0)}},
		{name: "zero query interval", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithQueryInterval(0)}},
		{name: "read error threshold below one", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithReadErrorThreshold(0)}},
		{name: "buffer limit too small", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithBufferLimit(100)}},
		{name: "max packet too small", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithMaxPacket(100)}},
		{name: "nil logger", host: "127.0.0.1", port: 8051, opts: []ConnOption{WithLogger(nil)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConnectionConfig(tt.host, tt.port, tt.opts...)
			require.Error(t, err)
		})
	}
}
