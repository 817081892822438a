package profile

import (
	"time"

	"github.com/pkg/errors"
)

// Profile describes the desired load shape of a test run: how many
// connections to hold open, how fast to drive them, how big each payload
// is, and how long a worker pauses between consecutive operations.
type Profile struct {
	Name         string        `json:"name"`
	Connections  int           `json:"connections"`
	OpsPerSecond int           `json:"ops_per_second"`
	DataSizeKB   int           `json:"data_size_kb"`
	ThinkTime    time.Duration `json:"think_time"`
	Duration     time.Duration `json:"duration"`
}

// Validate rejects profiles that would misconfigure a run. It is called
// before any worker is spawned so a bad profile never opens a connection.
func (p Profile) Validate() error {
	if p.Connections < 1 {
		return errors.Errorf("profile %q: connections must be >= 1, got %d", p.Name, p.Connections)
	}
	if p.OpsPerSecond < 0 {
		return errors.Errorf("profile %q: ops per second must be >= 0, got %d", p.Name, p.OpsPerSecond)
	}
	if p.DataSizeKB < 0 {
		return errors.Errorf("profile %q: data size must be >= 0, got %d KB", p.Name, p.DataSizeKB)
	}
	if p.ThinkTime < 0 {
		return errors.Errorf("profile %q: think time must be >= 0, got %s", p.Name, p.ThinkTime)
	}
	if p.Duration <= 0 {
		return errors.Errorf("profile %q: duration must be > 0, got %s", p.Name, p.Duration)
	}
	return nil
}

// TotalOperations is the advisory operation budget for a whole run:
// ops/sec times duration. The rate itself is not enforced per operation.
func (p Profile) TotalOperations() int {
	return p.OpsPerSecond * int(p.Duration/time.Second)
}

// PerWorkerOperations splits the total budget evenly across workers using
// floor division. Up to Connections-1 remainder operations are dropped,
// not redistributed.
func (p Profile) PerWorkerOperations() int {
	if p.Connections < 1 {
		return 0
	}
	return p.TotalOperations() / p.Connections
}

// LowLoad is the predefined gentle profile: few connections, small
// payloads, generous think time.
func LowLoad() Profile {
	return Profile{
		Name:         "Low Load",
		Connections:  2,
		OpsPerSecond: 10,
		DataSizeKB:   10,
		ThinkTime:    100 * time.Millisecond,
		Duration:     60 * time.Second,
	}
}

// HighLoad is the predefined stress profile: many connections, megabyte
// payloads, no pacing.
func HighLoad() Profile {
	return Profile{
		Name:         "High Load",
		Connections:  50,
		OpsPerSecond: 500,
		DataSizeKB:   1024,
		ThinkTime:    0,
		Duration:     300 * time.Second,
	}
}

// Option overrides a single field of a custom profile.
type Option func(*Profile)

func WithConnections(n int) Option      { return func(p *Profile) { p.Connections = n } }
func WithOpsPerSecond(n int) Option     { return func(p *Profile) { p.OpsPerSecond = n } }
func WithDataSizeKB(n int) Option       { return func(p *Profile) { p.DataSizeKB = n } }
func WithThinkTime(d time.Duration) Option { return func(p *Profile) { p.ThinkTime = d } }
func WithDuration(d time.Duration) Option  { return func(p *Profile) { p.Duration = d } }

// Custom builds a named profile from moderate defaults plus overrides.
func Custom(name string, opts ...Option) Profile {
	p := Profile{
		Name:         name,
		Connections:  10,
		OpsPerSecond: 50,
		DataSizeKB:   100,
		ThinkTime:    50 * time.Millisecond,
		Duration:     120 * time.Second,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
