package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowLoad(t *testing.T) {
	p := LowLoad()

	assert.Equal(t, "Low Load", p.Name)
	assert.Equal(t, 2, p.Connections)
	assert.Equal(t, 10, p.OpsPerSecond)
	assert.Equal(t, 10, p.DataSizeKB)
	assert.Equal(t, 100*time.Millisecond, p.ThinkTime)
	assert.Equal(t, 60*time.Second, p.Duration)
	require.NoError(t, p.Validate())
}

func TestHighLoad(t *testing.T) {
	p := HighLoad()

	assert.Equal(t, "High Load", p.Name)
	assert.Equal(t, 50, p.Connections)
	assert.Equal(t, 500, p.OpsPerSecond)
	assert.Equal(t, 1024, p.DataSizeKB)
	assert.Equal(t, time.Duration(0), p.ThinkTime)
	require.NoError(t, p.Validate())
}

func TestCustomDefaultsAndOverrides(t *testing.T) {
	p := Custom("Spike",
		WithConnections(15),
		WithOpsPerSecond(75),
		WithDataSizeKB(256),
	)

	assert.Equal(t, "Spike", p.Name)
	assert.Equal(t, 15, p.Connections)
	assert.Equal(t, 75, p.OpsPerSecond)
	assert.Equal(t, 256, p.DataSizeKB)
	// untouched fields keep the defaults
	assert.Equal(t, 50*time.Millisecond, p.ThinkTime)
	assert.Equal(t, 120*time.Second, p.Duration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Profile)
		wantErr bool
	}{
		{"valid", func(p *Profile) {}, false},
		{"zero connections", func(p *Profile) { p.Connections = 0 }, true},
		{"negative connections", func(p *Profile) { p.Connections = -3 }, true},
		{"negative rate", func(p *Profile) { p.OpsPerSecond = -1 }, true},
		{"negative data size", func(p *Profile) { p.DataSizeKB = -1 }, true},
		{"negative think time", func(p *Profile) { p.ThinkTime = -time.Second }, true},
		{"zero duration", func(p *Profile) { p.Duration = 0 }, true},
		{"zero rate is allowed", func(p *Profile) { p.OpsPerSecond = 0 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := LowLoad()
			tc.mutate(&p)
			err := p.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOperationCounts(t *testing.T) {
	p := Custom("counts",
		WithConnections(4),
		WithOpsPerSecond(10),
		WithDuration(10*time.Second),
	)
	assert.Equal(t, 100, p.TotalOperations())
	assert.Equal(t, 25, p.PerWorkerOperations())
}

func TestPerWorkerFloorDivisionDropsRemainder(t *testing.T) {
	// 10 ops/sec * 1s = 10 total across 3 workers: 3 each, one dropped.
	p := Custom("remainder",
		WithConnections(3),
		WithOpsPerSecond(10),
		WithDuration(time.Second),
	)
	assert.Equal(t, 10, p.TotalOperations())
	assert.Equal(t, 3, p.PerWorkerOperations())
	assert.Equal(t, 9, p.PerWorkerOperations()*p.Connections)
}
