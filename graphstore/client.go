// Package graphstore reads and writes the knowledge graph in Neo4j.
package graphstore

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes Cypher and returns every row as a map keyed by column.
// Client implements it against Neo4j; tests substitute an in-memory fake.
type Runner interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
	Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error)
}

// Config locates the Neo4j server.
type Config struct {
	URI         string        `json:"uri" yaml:"uri"`
	User        string        `json:"user" yaml:"user"`
	Password    string        `json:"password" yaml:"password"`
	Database    string        `json:"database" yaml:"database"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxPoolSize int           `json:"max_pool_size" yaml:"max_pool_size"`
}

// Client is a Runner backed by a Neo4j driver.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewClient opens a driver and verifies connectivity before returning.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("graphstore: uri required")
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graphstore: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: verify connectivity: %w", err)
	}

	return &Client{driver: driver, database: cfg.Database}, nil
}

// Read runs cypher in a read transaction.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, neo4j.AccessModeRead, cypher, params)
}

// Write runs cypher in a write transaction.
func (c *Client) Write(ctx context.Context, cypher string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, neo4j.AccessModeWrite, cypher, params)
}

func (c *Client) run(ctx context.Context, mode neo4j.AccessMode, cypher string, params map[string]any) ([]map[string]any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, len(records))
		for i, rec := range records {
			rows[i] = rec.AsMap()
		}
		return rows, nil
	}

	var (
		out any
		err error
	)
	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, fmt.Errorf("graphstore: %w", err)
	}
	return out.([]map[string]any), nil
}

// Close releases the driver.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}

// RelationshipTypes lists the relationship types present in the graph.
func RelationshipTypes(ctx context.Context, r Runner) ([]string, error) {
	rows, err := r.Read(ctx, "MATCH ()-[r]->() RETURN DISTINCT type(r) AS relationship_type", nil)
	if err != nil {
		return nil, err
	}
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		if t := String(row["relationship_type"]); t != "" {
			types = append(types, t)
		}
	}
	return types, nil
}

// Stats counts nodes and relationships.
type Stats struct {
	Nodes         int `json:"nodes"`
	Relationships int `json:"relationships"`
}

// Count returns the size of the graph.
func Count(ctx context.Context, r Runner) (Stats, error) {
	var s Stats
	rows, err := r.Read(ctx, "MATCH (n) RETURN count(n) AS total", nil)
	if err != nil {
		return s, err
	}
	if len(rows) > 0 {
		s.Nodes = Int(rows[0]["total"])
	}
	rows, err = r.Read(ctx, "MATCH ()-[r]->() RETURN count(r) AS total", nil)
	if err != nil {
		return s, err
	}
	if len(rows) > 0 {
		s.Relationships = Int(rows[0]["total"])
	}
	return s, nil
}
