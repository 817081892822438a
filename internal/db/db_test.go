package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"postgres ok", Config{Driver: DriverPostgres, Host: "db.local"}, false},
		{"mysql ok", Config{Driver: DriverMySQL, Host: "db.local"}, false},
		{"sqlite needs no host", Config{Driver: DriverSQLite}, false},
		{"missing driver", Config{Host: "db.local"}, true},
		{"unknown driver", Config{Driver: "oracle", Host: "db.local"}, true},
		{"postgres missing host", Config{Driver: DriverPostgres}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{
		Driver:   DriverPostgres,
		Host:     "db.local",
		User:     "bench",
		Password: "secret",
		Database: "loadtest",
	}

	dsn, err := cfg.dsn("", "", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "host=db.local")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "dbname=loadtest")
	assert.Contains(t, dsn, "sslmode=disable")

	cfg.UseTLS = true
	dsn, err = cfg.dsn("", "", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=verify-full")

	cfg.TLSSkipVerify = true
	dsn, err = cfg.dsn("", "", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "sslmode=require")
}

func TestMySQLDSN(t *testing.T) {
	cfg := Config{
		Driver:   DriverMySQL,
		Host:     "db.local",
		Port:     3307,
		User:     "bench",
		Password: "secret",
		Database: "loadtest",
		UseTLS:   true,
	}

	dsn, err := cfg.dsn("provider_tls", "provider_net", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "db.local:3307")
	assert.Contains(t, dsn, "tls=provider_tls")
	assert.True(t, strings.HasPrefix(dsn, "bench:secret@tcp("), dsn)

	cfg.NativeDialer = true
	dsn, err = cfg.dsn("provider_tls", "provider_net", "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "@provider_net(")
}

func TestSQLiteMemoryDSNIsNamespaced(t *testing.T) {
	cfg := Config{Driver: DriverSQLite}
	dsn, err := cfg.dsn("", "", "mem_a")
	require.NoError(t, err)
	assert.Equal(t, "file:mem_a?mode=memory&cache=shared", dsn)

	cfg.Database = "/tmp/bench.db"
	dsn, err = cfg.dsn("", "", "mem_a")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/bench.db", dsn)
}

func TestAddrDefaultsPort(t *testing.T) {
	assert.Equal(t, "db.local:5432", Config{Driver: DriverPostgres, Host: "db.local"}.Addr())
	assert.Equal(t, "db.local:3306", Config{Driver: DriverMySQL, Host: "db.local"}.Addr())
	assert.Equal(t, "db.local:1521", Config{Driver: DriverPostgres, Host: "db.local", Port: 1521}.Addr())
}

func TestProviderConnectSQLite(t *testing.T) {
	p := NewProvider(Config{Driver: DriverSQLite})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := p.Connect(ctx, "conn_0")
	require.NoError(t, err)
	assert.Equal(t, "conn_0", conn.ID())

	var one int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
	require.NoError(t, conn.Close())
}

func TestProviderConnectionsShareDataset(t *testing.T) {
	p := NewProvider(Config{Driver: DriverSQLite})
	defer p.Close()

	ctx := context.Background()

	a, err := p.Connect(ctx, "conn_0")
	require.NoError(t, err)
	defer a.Close()
	b, err := p.Connect(ctx, "conn_1")
	require.NoError(t, err)
	defer b.Close()

	_, err = a.ExecContext(ctx, "CREATE TABLE shared_probe (id INTEGER)")
	require.NoError(t, err)
	_, err = a.ExecContext(ctx, "INSERT INTO shared_probe (id) VALUES (7)")
	require.NoError(t, err)

	var id int
	require.NoError(t, b.QueryRowContext(ctx, "SELECT id FROM shared_probe").Scan(&id))
	assert.Equal(t, 7, id)
}

func TestIndependentProvidersAreIsolated(t *testing.T) {
	// Init-once state is provider-scoped: two providers in one process get
	// separate in-memory datasets and never trip over registrations.
	p1 := NewProvider(Config{Driver: DriverSQLite})
	p2 := NewProvider(Config{Driver: DriverSQLite})
	defer p1.Close()
	defer p2.Close()

	ctx := context.Background()

	c1, err := p1.Connect(ctx, "conn_0")
	require.NoError(t, err)
	defer c1.Close()
	c2, err := p2.Connect(ctx, "conn_0")
	require.NoError(t, err)
	defer c2.Close()

	_, err = c1.ExecContext(ctx, "CREATE TABLE only_in_p1 (id INTEGER)")
	require.NoError(t, err)

	var name string
	err = c2.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='only_in_p1'").Scan(&name)
	assert.Error(t, err, "second provider must not see the first provider's tables")
}

func TestPing(t *testing.T) {
	p := NewProvider(Config{Driver: DriverSQLite})
	defer p.Close()
	require.NoError(t, p.Ping(context.Background()))
}
