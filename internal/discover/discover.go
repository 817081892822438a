package discover

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"dbload/internal/db"
)

// Classification of a single database-name probe attempt.
type Classification int

const (
	// ClassReachable: the connection succeeded outright.
	ClassReachable Classification = iota
	// ClassAuthRequired: the server rejected the credentials, which proves
	// the database exists.
	ClassAuthRequired
	// ClassNotFound: the server reported the database as unknown.
	ClassNotFound
	// ClassUnknown: anything else (network flake, protocol error).
	ClassUnknown
)

// DefaultCandidates lists common database names worth probing per driver.
func DefaultCandidates(driver string) []string {
	switch driver {
	case db.DriverPostgres:
		return []string{"postgres", "template1", "app", "dev", "test", "prod"}
	case db.DriverMySQL:
		return []string{"mysql", "information_schema", "app", "dev", "test", "prod"}
	default:
		return nil
	}
}

// classifyProbeError buckets a failed probe by the server's error text.
// Driver error strings are stable enough for discovery purposes: both
// lib/pq and go-sql-driver surface the server message verbatim.
func classifyProbeError(err error) Classification {
	if err == nil {
		return ClassReachable
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password authentication failed"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "authentication failed"):
		return ClassAuthRequired
	case strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "unknown database"):
		return ClassNotFound
	default:
		return ClassUnknown
	}
}

// Services probes host:port for live databases: first a raw TCP
// reachability check, then one connection attempt per candidate name.
// Candidates that connect, or that fail with an authentication error,
// are reported as discovered.
func Services(ctx context.Context, cfg db.Config, candidates []string) ([]string, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Driver == db.DriverSQLite {
		return nil, errors.New("service discovery only applies to networked drivers")
	}
	if len(candidates) == 0 {
		candidates = DefaultCandidates(cfg.Driver)
	}

	addr := cfg.Addr()
	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "%s is not reachable", addr)
	}
	conn.Close()
	log.WithField("addr", addr).Info("port is open, probing candidate databases")

	var discovered []string
	for _, name := range candidates {
		probeCfg := cfg
		probeCfg.Database = name
		probeCfg.ConnectTimeout = 2 * time.Second

		provider := db.NewProvider(probeCfg)
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		c, err := provider.Connect(probeCtx, "discover")
		cancel()
		if c != nil {
			c.Close()
		}
		provider.Close()

		switch classifyProbeError(err) {
		case ClassReachable:
			log.WithField("database", name).Info("found")
			discovered = append(discovered, name)
		case ClassAuthRequired:
			log.WithField("database", name).Info("found (credentials needed)")
			discovered = append(discovered, name)
		case ClassNotFound:
			// absent, keep probing
		default:
			log.WithError(err).WithField("database", name).Debug("inconclusive probe")
		}
	}

	return discovered, nil
}
