package db

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net"
	"sync"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Provider hands out dedicated connections, one per worker. Driver-level
// state (mysql TLS config, custom dialer, the in-memory sqlite namespace)
// is registered once per provider under a unique name, so independent
// providers coexist in one process.
type Provider struct {
	cfg Config

	// per-provider registration namespace
	tlsName    string
	netName    string
	memoryName string

	initOnce sync.Once
	initErr  error
	handle   *sql.DB
}

func NewProvider(cfg Config) *Provider {
	name := uuid.New().String()[:8]
	return &Provider{
		cfg:        cfg,
		tlsName:    "dbload_tls_" + name,
		netName:    "dbload_net_" + name,
		memoryName: "dbload_mem_" + name,
	}
}

func (p *Provider) init() error {
	p.initOnce.Do(func() {
		if err := p.cfg.Validate(); err != nil {
			p.initErr = err
			return
		}

		if p.cfg.Driver == DriverMySQL {
			if p.cfg.UseTLS {
				tc := &tls.Config{
					InsecureSkipVerify: p.cfg.TLSSkipVerify,
					ServerName:         p.cfg.TLSServerName,
				}
				if err := mysql.RegisterTLSConfig(p.tlsName, tc); err != nil {
					p.initErr = errors.Wrap(err, "registering TLS config")
					return
				}
			}
			if p.cfg.NativeDialer {
				dialer := &net.Dialer{
					Timeout:   p.cfg.connectTimeout(),
					KeepAlive: 30 * time.Second,
				}
				mysql.RegisterDialContext(p.netName, func(ctx context.Context, addr string) (net.Conn, error) {
					return dialer.DialContext(ctx, "tcp", addr)
				})
			}
		}

		dsn, err := p.cfg.dsn(p.tlsName, p.netName, p.memoryName)
		if err != nil {
			p.initErr = err
			return
		}

		handle, err := sql.Open(p.cfg.Driver, dsn)
		if err != nil {
			p.initErr = errors.Wrapf(err, "opening %s handle", p.cfg.Driver)
			return
		}
		// Workers pin connections for their whole lifetime; idle pooling
		// would only hold dead connections between runs.
		handle.SetConnMaxIdleTime(time.Minute)
		p.handle = handle

		log.WithFields(log.Fields{
			"driver": p.cfg.Driver,
			"tls":    p.cfg.UseTLS,
		}).Debug("connection provider initialized")
	})
	return p.initErr
}

// Connect establishes one dedicated connection for a worker, retrying
// transient failures with backoff before giving up.
func (p *Provider) Connect(ctx context.Context, id string) (*Conn, error) {
	if err := p.init(); err != nil {
		return nil, err
	}

	var sqlConn *sql.Conn
	err := retry.Do(
		func() error {
			c, err := p.handle.Conn(ctx)
			if err != nil {
				return err
			}
			if err := c.PingContext(ctx); err != nil {
				c.Close()
				return err
			}
			sqlConn = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connection %s failed", id)
	}

	log.WithField("connection", id).Debug("connection established")
	return &Conn{id: id, conn: sqlConn}, nil
}

// Ping verifies connectivity with a trivial query, without touching any
// test tables.
func (p *Provider) Ping(ctx context.Context) error {
	conn, err := p.Connect(ctx, "connection_test")
	if err != nil {
		return err
	}
	defer conn.Close()

	var one int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return errors.Wrap(err, "connectivity probe query failed")
	}
	if one != 1 {
		return errors.Errorf("connectivity probe returned %d", one)
	}
	return nil
}

// Config returns the provider's configuration.
func (p *Provider) Config() Config {
	return p.cfg
}

// Close releases the underlying handle. Outstanding worker connections
// keep working until they are individually closed.
func (p *Provider) Close() error {
	if p.handle == nil {
		return nil
	}
	return p.handle.Close()
}
