package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/models"
)

// falkorAdapter implements Adapter over the RESP protocol via
// GRAPH.QUERY. Node ids are FalkorDB's internal integer ids, carried as
// decimal strings on the Adapter surface. Query statistics are
// FalkorDB's emulated server metadata; they are split off during reply
// decoding and never reach callers as rows.
type falkorAdapter struct {
	cfg     Config
	client  *redis.Client
	logger  *slog.Logger
	dialect queryDialect
}

func newFalkorAdapter(cfg Config) *falkorAdapter {
	return &falkorAdapter{
		cfg:     cfg,
		logger:  logging.ForComponent("falkordb"),
		dialect: queryDialect{idFunc: "id"},
	}
}

func (a *falkorAdapter) Backend() Backend { return BackendFalkorDB }

func (a *falkorAdapter) Connect(ctx context.Context) error {
	opts, err := falkorOptions(a.cfg)
	if err != nil {
		return err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return errors.Connectionf(err, "verify falkordb connectivity at %s", a.cfg.URI)
	}
	a.client = client

	if err := a.applySchema(ctx); err != nil {
		_ = client.Close()
		a.client = nil
		return err
	}

	a.logger.Info("connected", "addr", a.cfg.URI, "graph", a.cfg.Database, "pool_size", a.cfg.PoolSize)
	return nil
}

func falkorOptions(cfg Config) (*redis.Options, error) {
	var opts *redis.Options
	if strings.Contains(cfg.URI, "://") {
		parsed, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, errors.Connectionf(err, "parse falkordb url %s", cfg.URI)
		}
		opts = parsed
		if cfg.Username != "" {
			opts.Username = cfg.Username
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
	} else {
		opts = &redis.Options{Addr: cfg.URI, Username: cfg.Username, Password: cfg.Password}
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = cfg.QueryTimeout + 5*time.Second
	// Graph replies are decoded as RESP2 arrays.
	opts.Protocol = 2
	return opts, nil
}

func (a *falkorAdapter) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	if err != nil {
		return errors.Connection(err, "close falkordb client")
	}
	return nil
}

func (a *falkorAdapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return errNotConnected()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.client.Ping(checkCtx).Err(); err != nil {
		return errors.Connection(err, "falkordb health check failed")
	}
	return nil
}

// applySchema walks the shared catalog. Unique constraints need an
// exact-match index on the property first, then GRAPH.CONSTRAINT; both
// steps tolerate reruns.
func (a *falkorAdapter) applySchema(ctx context.Context) error {
	for _, c := range schemaConstraints {
		prop := c.props[0]
		if c.kind == constraintNodeKey {
			prop = syntheticKeyName(c.label)
		}
		if err := a.ensureIndex(ctx, c.label, prop); err != nil {
			return err
		}
		if err := a.ensureUniqueConstraint(ctx, c.label, prop); err != nil {
			return err
		}
	}
	for _, idx := range schemaIndexes {
		if err := a.ensureIndex(ctx, idx.label, idx.prop); err != nil {
			return err
		}
	}
	a.logger.Debug("schema applied", "graph", a.cfg.Database)
	return nil
}

func (a *falkorAdapter) ensureIndex(ctx context.Context, label, prop string) error {
	_, _, err := a.query(ctx, fmt.Sprintf("CREATE INDEX ON :%s(%s)", label, prop), nil)
	if err != nil && !isSchemaExists(err) {
		return errors.Operation(err, fmt.Sprintf("create index on :%s(%s)", label, prop), false)
	}
	return nil
}

func (a *falkorAdapter) ensureUniqueConstraint(ctx context.Context, label, prop string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()
	err := a.client.Do(cmdCtx, "GRAPH.CONSTRAINT", "CREATE", a.cfg.Database,
		"UNIQUE", "NODE", label, "PROPERTIES", 1, prop).Err()
	if err != nil && !isSchemaExists(err) {
		return errors.Operation(err, fmt.Sprintf("create unique constraint on :%s(%s)", label, prop), false)
	}
	return nil
}

func isSchemaExists(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already indexed") || strings.Contains(msg, "already exists")
}

// query executes one GRAPH.QUERY round trip, returning decoded rows and
// the statistics strings.
func (a *falkorAdapter) query(ctx context.Context, cypher string, params map[string]any) ([]Record, []string, error) {
	if a.client == nil {
		return nil, nil, errNotConnected()
	}

	full := cypher
	if len(params) > 0 {
		prologue, err := cypherParamsPrologue(params)
		if err != nil {
			return nil, nil, err
		}
		full = prologue + " " + cypher
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	started := time.Now()
	raw, err := a.client.Do(queryCtx, "GRAPH.QUERY", a.cfg.Database, full,
		"TIMEOUT", int64(a.cfg.QueryTimeout/time.Millisecond)).Result()
	if err != nil {
		return nil, nil, classifyFalkorError(err, time.Since(started))
	}
	records, stats, err := decodeGraphReply(raw)
	if err != nil {
		return nil, nil, err
	}
	return records, stats, nil
}

func (a *falkorAdapter) run(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	records, _, err := a.query(ctx, cypher, params)
	return records, err
}

func (a *falkorAdapter) RunQuery(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return a.run(ctx, cypher, params)
}

func (a *falkorAdapter) UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error) {
	if node == nil {
		return nil, errors.Validation("node must not be nil")
	}
	if err := ValidateLabels(node.Labels); err != nil {
		return nil, err
	}
	if err := ValidatePropertyKeys(node.Properties); err != nil {
		return nil, err
	}

	if node.ID != "" {
		id, err := falkorID(node.ID)
		if err != nil {
			return nil, err
		}
		records, err := a.run(ctx,
			"MATCH (n) WHERE id(n) = $id SET n += $props RETURN id(n) AS id, labels(n) AS labels",
			map[string]any{"id": id, "props": node.Properties})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, errors.EntityNotFound("node", node.ID)
		}
		return nodeFromUpsert(records[0], node.Properties), nil
	}

	applySyntheticKeys(BackendFalkorDB, node)
	keys, err := KeyProperties(BackendFalkorDB, node.PrimaryLabel())
	if err != nil {
		return nil, err
	}
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeNode(node.Labels, keys, node.Properties, "id")
	if err != nil {
		return nil, err
	}
	records, err := a.run(ctx, cypher, builder.Params())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.Operation(nil, "node upsert returned no row", false)
	}
	return nodeFromUpsert(records[0], node.Properties), nil
}

func (a *falkorAdapter) UpsertNodes(ctx context.Context, nodes []*models.GraphNode) (int, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	groups, order, err := groupNodesByLabel(BackendFalkorDB, nodes)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, label := range order {
		group := groups[label]
		keys, err := KeyProperties(BackendFalkorDB, label)
		if err != nil {
			return total, err
		}
		cypher := buildUnwindMerge(label, keys)
		batch := make([]map[string]any, len(group))
		for i, n := range group {
			batch[i] = n.Properties
		}
		records, err := a.run(ctx, cypher, map[string]any{"nodes": batch})
		if err != nil {
			return total, err
		}
		total += countFromRecords(records)
	}
	return total, nil
}

// DeleteNode relies on the statistics rows: DELETE queries report
// "Nodes deleted" instead of returning a result set.
func (a *falkorAdapter) DeleteNode(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Validation("node id must not be empty")
	}
	numID, err := falkorID(id)
	if err != nil {
		return false, err
	}
	_, stats, err := a.query(ctx,
		"MATCH (n) WHERE id(n) = $id DETACH DELETE n",
		map[string]any{"id": numID})
	if err != nil {
		return false, err
	}
	return statInt(stats, "Nodes deleted") > 0, nil
}

func (a *falkorAdapter) CreateRelationship(ctx context.Context, fromID, toID string, relType models.RelationshipType, props map[string]any) (*models.GraphRelationship, error) {
	if err := ValidateRelationshipType(relType); err != nil {
		return nil, err
	}
	if err := ValidatePropertyKeys(props); err != nil {
		return nil, err
	}
	fromNum, err := falkorID(fromID)
	if err != nil {
		return nil, err
	}
	toNum, err := falkorID(toID)
	if err != nil {
		return nil, err
	}

	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeRelationship(string(relType), fromNum, toNum, props, "id")
	if err != nil {
		return nil, err
	}
	records, err := a.run(ctx, cypher, builder.Params())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.EntityNotFound("node", fromID+" or "+toID)
	}
	return &models.GraphRelationship{
		ID:         idToString(records[0]["id"]),
		Type:       relType,
		FromID:     fromID,
		ToID:       toID,
		Properties: props,
	}, nil
}

func (a *falkorAdapter) CreateRelationships(ctx context.Context, rels []*models.GraphRelationship) (int, error) {
	if len(rels) == 0 {
		return 0, nil
	}
	groups, order, err := groupRelsByType(rels)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, relType := range order {
		group := groups[relType]
		batch := make([]map[string]any, 0, len(group))
		for _, r := range group {
			fromNum, err := falkorID(r.FromID)
			if err != nil {
				return total, err
			}
			toNum, err := falkorID(r.ToID)
			if err != nil {
				return total, err
			}
			props := r.Properties
			if props == nil {
				props = map[string]any{}
			}
			batch = append(batch, map[string]any{"from": fromNum, "to": toNum, "props": props})
		}
		cypher := fmt.Sprintf(
			"UNWIND $rels AS rel "+
				"MATCH (a) WHERE id(a) = rel.from "+
				"MATCH (b) WHERE id(b) = rel.to "+
				"MERGE (a)-[r:%s]->(b) SET r += rel.props "+
				"RETURN count(r) AS count",
			relType)
		records, err := a.run(ctx, cypher, map[string]any{"rels": batch})
		if err != nil {
			return total, err
		}
		total += countFromRecords(records)
	}
	return total, nil
}

func (a *falkorAdapter) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Validation("relationship id must not be empty")
	}
	numID, err := falkorID(id)
	if err != nil {
		return false, err
	}
	_, stats, err := a.query(ctx,
		"MATCH ()-[r]->() WHERE id(r) = $id DELETE r",
		map[string]any{"id": numID})
	if err != nil {
		return false, err
	}
	return statInt(stats, "Relationships deleted") > 0, nil
}

func (a *falkorAdapter) Traverse(ctx context.Context, q TraversalQuery) (*TraversalResult, error) {
	start, err := a.resolveStart(ctx, q)
	if err != nil {
		return nil, err
	}

	cypher, params, err := a.dialect.buildTraversal(q)
	if err != nil {
		return nil, err
	}
	records, err := a.run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	result := &TraversalResult{Start: start, Nodes: make([]TraversalNode, 0, len(records))}
	for _, rec := range records {
		result.Nodes = append(result.Nodes, recordToTraversalNode(rec))
	}
	return result, nil
}

func (a *falkorAdapter) resolveStart(ctx context.Context, q TraversalQuery) (*models.GraphNode, error) {
	cypher, params, err := a.dialect.buildResolveStart(q)
	if err != nil {
		return nil, err
	}
	records, err := a.run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		identifier := q.StartID
		if identifier == "" {
			identifier = fmt.Sprintf("%s %v", q.StartLabel, q.StartProps)
		}
		return nil, errors.EntityNotFound("start node", identifier)
	}
	tn := recordToTraversalNode(records[0])
	return &models.GraphNode{ID: tn.ID, Labels: tn.Labels, Properties: tn.Properties}, nil
}

func (a *falkorAdapter) AnalyzeDependencies(ctx context.Context, q DependencyQuery) (*DependencyResult, error) {
	return analyzeDependencies(ctx, a.dialect, a.run, q)
}

func (a *falkorAdapter) GetContext(ctx context.Context, q ContextQuery) (*ContextResult, error) {
	return getContext(ctx, a.dialect, a.run, q)
}

// falkorID parses the decimal string form of a FalkorDB internal id.
func falkorID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, errors.Validationf("invalid falkordb id %q: ids are integers", id)
	}
	return n, nil
}

func classifyFalkorError(err error, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout("falkordb query timed out", elapsed.Milliseconds())
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.Timeout("falkordb query timed out", elapsed.Milliseconds())
		}
		return errors.Connection(err, "falkordb connection failed")
	}
	if stderrors.Is(err, redis.ErrClosed) {
		return errors.Connection(err, "falkordb connection closed")
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout") {
		return errors.Timeout("falkordb query timed out", elapsed.Milliseconds())
	}
	if strings.Contains(msg, "connection") {
		return errors.Connection(err, "falkordb connection failed")
	}
	return errors.Operation(err, "falkordb query failed", false)
}
