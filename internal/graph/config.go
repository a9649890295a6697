package graph

import (
	"time"

	"github.com/codegraphhq/codegraph/internal/retry"
)

// Config carries connection coordinates for a graph backend. URI is the
// bolt address for neo4j and the redis address (host:port) for falkordb;
// Database is the neo4j database name and the falkordb graph key.
type Config struct {
	Backend        Backend
	URI            string
	Username       string
	Password       string
	Database       string
	PoolSize       int
	AcquireTimeout time.Duration
	QueryTimeout   time.Duration
	Retry          *retry.Config
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Database == "" {
		if c.Backend == BackendFalkorDB {
			c.Database = "codegraph"
		} else {
			c.Database = "neo4j"
		}
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 50
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 60 * time.Second
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 30 * time.Second
	}
	return c
}
