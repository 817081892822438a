package db

import (
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite3"
)

// Config is the flat connection configuration loaded once before a run.
// UseTLS and NativeDialer only change how the provider reaches the backend;
// the workload engine treats them as opaque.
type Config struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	UseTLS        bool   `mapstructure:"use_tls"`
	TLSSkipVerify bool   `mapstructure:"tls_skip_verify"`
	TLSServerName string `mapstructure:"tls_server_name"`

	// NativeDialer routes mysql connections through a driver-registered
	// dialer with keep-alive tuning instead of the default net.Dial path.
	NativeDialer bool `mapstructure:"native_dialer"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	case "":
		return errors.New("db config: driver is required")
	default:
		return errors.Errorf("db config: unsupported driver %q", c.Driver)
	}
	if c.Driver != DriverSQLite && c.Host == "" {
		return errors.Errorf("db config: host is required for driver %q", c.Driver)
	}
	return nil
}

// Addr is the host:port endpoint, with the dialect's default port filled in.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		switch c.Driver {
		case DriverPostgres:
			port = 5432
		case DriverMySQL:
			port = 3306
		}
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// dsn builds the driver-specific connection string. The mysql tlsName and
// netName refer to registrations owned by the provider (see Provider.init),
// keeping TLS and dialer state provider-scoped instead of process-global.
func (c Config) dsn(tlsName, netName, memoryName string) (string, error) {
	switch c.Driver {
	case DriverPostgres:
		sslmode := "disable"
		if c.UseTLS {
			sslmode = "verify-full"
			if c.TLSSkipVerify {
				sslmode = "require"
			}
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
			c.Host, c.portOrDefault(5432), c.User, c.Password, c.Database, sslmode,
			int(c.connectTimeout().Seconds())), nil

	case DriverMySQL:
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		if c.NativeDialer {
			mc.Net = netName
		}
		mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.portOrDefault(3306))
		mc.DBName = c.Database
		mc.Timeout = c.connectTimeout()
		if c.UseTLS {
			mc.TLSConfig = tlsName
		}
		return mc.FormatDSN(), nil

	case DriverSQLite:
		if c.Database == "" || c.Database == ":memory:" {
			// A plain :memory: DSN would give every pooled connection its
			// own empty database; a named shared-cache DB keeps the
			// provider's workers on one dataset.
			return fmt.Sprintf("file:%s?mode=memory&cache=shared", memoryName), nil
		}
		return c.Database, nil

	default:
		return "", errors.Errorf("db config: unsupported driver %q", c.Driver)
	}
}

func (c Config) portOrDefault(def int) int {
	if c.Port != 0 {
		return c.Port
	}
	return def
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 10 * time.Second
}
