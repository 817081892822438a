package discover

import (
	"context"
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbload/internal/db"
)

func TestClassifyProbeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Classification
	}{
		{"nil means reachable", nil, ClassReachable},
		{"pq auth", errors.New(`pq: password authentication failed for user "sys"`), ClassAuthRequired},
		{"mysql auth", errors.New("Error 1045: Access denied for user 'sys'@'localhost'"), ClassAuthRequired},
		{"pq missing db", errors.New(`pq: database "nope" does not exist`), ClassNotFound},
		{"mysql missing db", errors.New("Error 1049: Unknown database 'nope'"), ClassNotFound},
		{"network flake", errors.New("read tcp: connection reset by peer"), ClassUnknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyProbeError(tc.err))
		})
	}
}

func TestDefaultCandidates(t *testing.T) {
	assert.Contains(t, DefaultCandidates(db.DriverPostgres), "postgres")
	assert.Contains(t, DefaultCandidates(db.DriverMySQL), "mysql")
	assert.Empty(t, DefaultCandidates(db.DriverSQLite))
}

func TestServicesUnreachableHost(t *testing.T) {
	// Grab a free port and close it again so the probe hits a dead socket.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	cfg := db.Config{Driver: db.DriverPostgres, Host: "127.0.0.1", Port: port}
	_, err = Services(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestServicesRejectsSQLite(t *testing.T) {
	_, err := Services(context.Background(), db.Config{Driver: db.DriverSQLite}, nil)
	assert.Error(t, err)
}

func TestServicesRejectsInvalidConfig(t *testing.T) {
	_, err := Services(context.Background(), db.Config{}, nil)
	assert.Error(t, err)
}
