package throttle

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arloliu/go-rocrail/logger"
	"github.com/arloliu/go-rocrail/rcp"
)

// ConnectionConfig represents the configuration parameters for a control-server connection.
type ConnectionConfig struct {
	mu sync.RWMutex

	// host specifies the host of the control server.
	host string

	// port specifies the TCP port number of the control server.
	port int

	// connectTimeout defines the timeout for establishing a connection.
	// It should be between 1 and 30 seconds.
	// Defaults to 10 seconds.
	connectTimeout time.Duration

	// closeConnTimeout defines the timeout for closing the whole connection.
	// It should be between 1 and 30 seconds.
	// Defaults to 3 seconds.
	closeConnTimeout time.Duration

	// writeTimeout defines the per-frame write deadline of the sender task.
	// Defaults to 5 seconds.
	writeTimeout time.Duration

	// fastRetryCount defines how many leading reconnection attempts use the
	// fast retry delay before the schedule switches to the slow delay.
	// Defaults to 3.
	fastRetryCount int

	// fastRetryDelay defines the delay before each of the leading reconnection attempts.
	// Defaults to 3 seconds.
	fastRetryDelay time.Duration

	// slowRetryDelay defines the delay before every reconnection attempt after the
	// fast phase. Defaults to 8 seconds.
	slowRetryDelay time.Duration

	// cooldownAfter defines the number of attempts after which an extended cooldown
	// pause is inserted, recurring every cooldownAfter attempts. Zero disables the
	// cooldown. Defaults to 40.
	cooldownAfter int

	// cooldownDelay defines the extra pause added at each cooldown point.
	// Defaults to 60 seconds.
	cooldownDelay time.Duration

	// settleDelay defines how long to wait after a successful reconnect before
	// re-issuing the roster query, giving the server time to finish its greeting.
	// Defaults to 1 second.
	settleDelay time.Duration

	// queryTimeout defines how long a roster query stays pending before it is
	// considered expired. Defaults to 10 seconds.
	queryTimeout time.Duration

	// queryInterval defines the minimum spacing between roster query attempts while
	// no roster has been loaded yet. Defaults to 30 seconds.
	queryInterval time.Duration

	// readErrorThreshold defines the run of consecutive read errors required before
	// the connection is declared lost. Defaults to 3.
	readErrorThreshold int

	// bufferLimit defines the receive buffer ceiling in bytes.
	// Defaults to rcp.DefaultBufferLimit.
	bufferLimit int

	// maxPacket defines the oversized-packet drop threshold in bytes.
	// Defaults to rcp.DefaultMaxPacket.
	maxPacket int

	// defaultLocoID optionally seeds the roster with one locomotive id when no
	// persisted roster exists, so the throttle is usable before the first roster
	// query completes. Empty disables seeding.
	defaultLocoID string

	// logger provides a logger instance for logging connection events and errors.
	logger logger.Logger
}

// NewConnectionConfig creates a new control-server connection configuration with the
// given host, port number, and optional functional options.
//
// It initializes a ConnectionConfig struct with default values and then applies the
// provided options to customize the configuration.
//
// The opts parameter is a variadic argument that accepts a list of ConnOption
// functions. See the documentation for ConnOption and the various WithXXX functions
// for available configuration options.
//
// Returns a pointer to the initialized ConnectionConfig and an error if any occurred
// during the configuration process.
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		connectTimeout:     10 * time.Second,
		closeConnTimeout:   3 * time.Second,
		writeTimeout:       5 * time.Second,
		fastRetryCount:     3,
		fastRetryDelay:     3 * time.Second,
		slowRetryDelay:     8 * time.Second,
		cooldownAfter:      40,
		cooldownDelay:      60 * time.Second,
		settleDelay:        1 * time.Second,
		queryTimeout:       10 * time.Second,
		queryInterval:      30 * time.Second,
		readErrorThreshold: 3,
		bufferLimit:        rcp.DefaultBufferLimit,
		maxPacket:          rcp.DefaultMaxPacket,
		logger:             logger.GetLogger(),
	}

	if err := withRemoteHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// Host returns the control server host.
func (cfg *ConnectionConfig) Host() string {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.host
}

// Port returns the control server TCP port.
func (cfg *ConnectionConfig) Port() int {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.port
}

// ConnectTimeout returns the connection establishment timeout.
func (cfg *ConnectionConfig) ConnectTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.connectTimeout
}

// QueryInterval returns the minimum spacing between roster query attempts.
func (cfg *ConnectionConfig) QueryInterval() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.queryInterval
}

// QueryTimeout returns the pending roster query expiry.
func (cfg *ConnectionConfig) QueryTimeout() time.Duration {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.queryTimeout
}

// Logger returns the configured logger instance.
func (cfg *ConnectionConfig) Logger() logger.Logger {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	return cfg.logger
}

// ConnOption represents a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	runtime   bool
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error { return c.applyFunc(cfg) }

func newConnOptFunc(name string, runtime bool, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{
		name:      name,
		runtime:   runtime,
		applyFunc: f,
	}
}

// withRemoteHost sets the host of the control server.
// It returns a ConnOption that validates the host and updates the configuration.
// An error is returned if the configuration is nil.
func withRemoteHost(host string) ConnOption {
	return newConnOptFunc("withRemoteHost", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		// Check if it's a valid IP address
		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		// If not an IP, check if it's a valid domain name
		host = strings.TrimPrefix(host, ".")
		host = strings.TrimSuffix(host, ".")
		if _, err := net.LookupHost(host); err == nil {
			cfg.host = host
			return nil
		}

		return errors.New("invalid host")
	})
}

// withPort sets the TCP port number of the control server.
// It returns a ConnOption that validates the port number and updates the configuration.
// An error is returned if the port number is out of the valid range (1-65535) or if
// the configuration is nil.
func withPort(port int) ConnOption {
	return newConnOptFunc("withPort", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if port < 0 || port > 65535 {
			return errors.New("port is out of range [1, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithConnectTimeout sets the timeout for establishing a connection.
//
// An error is returned if the timeout is not between 1 and 30 seconds or if the
// configuration is nil.
//
// The default value is 10 seconds.
//
// This option can't be changed at runtime.
func WithConnectTimeout(timeout time.Duration) ConnOption {
	return newConnOptFunc("WithConnectTimeout", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if timeout < 1*time.Second || timeout > 30*time.Second {
			return errors.New("connect timeout is out of range [1s, 30s]")
		}
		cfg.connectTimeout = timeout

		return nil
	})
}

// WithCloseConnTimeout sets the timeout for closing the whole connection.
//
// An error is returned if the timeout is not between 1 and 30 seconds or if the
// configuration is nil.
//
// The default value is 3 seconds.
//
// This option can't be changed at runtime.
func WithCloseConnTimeout(timeout time.Duration) ConnOption {
	return newConnOptFunc("WithCloseConnTimeout", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if timeout < 1*time.Second || timeout > 30*time.Second {
			return errors.New("close connection timeout is out of range [1s, 30s]")
		}
		cfg.closeConnTimeout = timeout

		return nil
	})
}

// WithWriteTimeout sets the per-frame write deadline of the sender task.
//
// An error is returned if the timeout is not positive or if the configuration is nil.
//
// The default value is 5 seconds.
//
// This option can't be changed at runtime.
func WithWriteTimeout(timeout time.Duration) ConnOption {
	return newConnOptFunc("WithWriteTimeout", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if timeout <= 0 {
			return errors.New("write timeout must be positive")
		}
		cfg.writeTimeout = timeout

		return nil
	})
}

// WithFastRetry sets the leading phase of the reconnection schedule: count attempts
// spaced by delay before the schedule switches to the slow retry delay.
//
// An error is returned if count is negative, delay is not positive, or the
// configuration is nil.
//
// The default is 3 attempts spaced by 3 seconds.
//
// This option can't be changed at runtime.
func WithFastRetry(count int, delay time.Duration) ConnOption {
	return newConnOptFunc("WithFastRetry", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if count < 0 {
			return errors.New("fast retry count must not be negative")
		}
		if delay <= 0 {
			return errors.New("fast retry delay must be positive")
		}
		cfg.fastRetryCount = count
		cfg.fastRetryDelay = delay

		return nil
	})
}

// WithSlowRetryDelay sets the delay before every reconnection attempt after the
// fast phase.
//
// An error is returned if the delay is not positive or if the configuration is nil.
//
// The default value is 8 seconds.
//
// This option can't be changed at runtime.
func WithSlowRetryDelay(delay time.Duration) ConnOption {
	return newConnOptFunc("WithSlowRetryDelay", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if delay <= 0 {
			return errors.New("slow retry delay must be positive")
		}
		cfg.slowRetryDelay = delay

		return nil
	})
}

// WithCooldown sets the extended cooldown of the reconnection schedule: after every
// `after` attempts, `delay` is added on top of the regular retry delay. An `after`
// of zero disables the cooldown.
//
// An error is returned if after is negative, delay is negative, or the configuration
// is nil.
//
// The default is a 60 second cooldown every 40 attempts.
//
// This option can't be changed at runtime.
func WithCooldown(after int, delay time.Duration) ConnOption {
	return newConnOptFunc("WithCooldown", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if after < 0 {
			return errors.New("cooldown attempt count must not be negative")
		}
		if delay < 0 {
			return errors.New("cooldown delay must not be negative")
		}
		cfg.cooldownAfter = after
		cfg.cooldownDelay = delay

		return nil
	})
}

// WithSettleDelay sets how long to wait after a successful reconnect before
// re-issuing the roster query.
//
// An error is returned if the delay is negative or if the configuration is nil.
//
// The default value is 1 second.
//
// This option can't be changed at runtime.
func WithSettleDelay(delay time.Duration) ConnOption {
	return newConnOptFunc("WithSettleDelay", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if delay < 0 {
			return errors.New("settle delay must not be negative")
		}
		cfg.settleDelay = delay

		return nil
	})
}

// WithQueryTimeout sets how long a roster query stays pending before it is
// considered expired and a new query may be issued.
//
// An error is returned if the timeout is not positive or if the configuration is nil.
//
// The default value is 10 seconds.
//
// This option can be changed at runtime.
func WithQueryTimeout(timeout time.Duration) ConnOption {
	return newConnOptFunc("WithQueryTimeout", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if timeout <= 0 {
			return errors.New("query timeout must be positive")
		}
		cfg.queryTimeout = timeout

		return nil
	})
}

// WithQueryInterval sets the minimum spacing between roster query attempts while no
// roster has been loaded yet.
//
// An error is returned if the interval is not positive or if the configuration is nil.
//
// The default value is 30 seconds.
//
// This option can be changed at runtime.
func WithQueryInterval(interval time.Duration) ConnOption {
	return newConnOptFunc("WithQueryInterval", true, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if interval <= 0 {
			return errors.New("query interval must be positive")
		}
		cfg.queryInterval = interval

		return nil
	})
}

// WithReadErrorThreshold sets the run of consecutive read errors required before
// the connection is declared lost. Transient single errors never tear the
// session down.
//
// An error is returned if the threshold is less than 1 or if the configuration
// is nil.
//
// The default value is 3.
//
// This option can't be changed at runtime.
func WithReadErrorThreshold(threshold int) ConnOption {
	return newConnOptFunc("WithReadErrorThreshold", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if threshold < 1 {
			return errors.New("read error threshold must be at least 1")
		}
		cfg.readErrorThreshold = threshold

		return nil
	})
}

// WithBufferLimit sets the receive buffer ceiling in bytes. Data beyond the
// ceiling is truncated with roster-aware retention.
//
// An error is returned if the limit is smaller than 1024 bytes or if the
// configuration is nil.
//
// The default value is rcp.DefaultBufferLimit.
//
// This option can't be changed at runtime.
func WithBufferLimit(limit int) ConnOption {
	return newConnOptFunc("WithBufferLimit", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if limit < 1024 {
			return errors.New("buffer limit must be at least 1024 bytes")
		}
		cfg.bufferLimit = limit

		return nil
	})
}

// WithMaxPacket sets the oversized-packet drop threshold in bytes. Any single
// read larger than this is discarded outright, never buffered.
//
// An error is returned if the threshold is smaller than 1024 bytes or if the
// configuration is nil.
//
// The default value is rcp.DefaultMaxPacket.
//
// This option can't be changed at runtime.
func WithMaxPacket(max int) ConnOption {
	return newConnOptFunc("WithMaxPacket", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if max < 1024 {
			return errors.New("max packet must be at least 1024 bytes")
		}
		cfg.maxPacket = max

		return nil
	})
}

// WithDefaultLoco seeds the roster with one locomotive id when no persisted roster
// exists, so the throttle is usable before the first roster query completes.
//
// An error is returned if the configuration is nil.
//
// The default is no seeding.
//
// This option can't be changed at runtime.
func WithDefaultLoco(id string) ConnOption {
	return newConnOptFunc("WithDefaultLoco", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		cfg.defaultLocoID = id

		return nil
	})
}

// WithLogger sets the logger instance for logging connection events and errors.
//
// An error is returned if the logger or the configuration is nil.
//
// The default is the package-level logger.
//
// This option can't be changed at runtime.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", false, func(cfg *ConnectionConfig) error {
		if cfg == nil {
			return ErrConnConfigNil
		}

		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
