package graph

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"github.com/codegraphhq/codegraph/internal/errors"
	"github.com/codegraphhq/codegraph/internal/logging"
	"github.com/codegraphhq/codegraph/internal/models"
)

// neo4jAdapter implements Adapter over the bolt protocol. Node ids are
// neo4j element ids (opaque strings).
type neo4jAdapter struct {
	cfg     Config
	driver  neo4j.DriverWithContext
	logger  *slog.Logger
	dialect queryDialect
}

func newNeo4jAdapter(cfg Config) *neo4jAdapter {
	return &neo4jAdapter{
		cfg:     cfg,
		logger:  logging.ForComponent("neo4j"),
		dialect: queryDialect{idFunc: "elementId"},
	}
}

func (a *neo4jAdapter) Backend() Backend { return BackendNeo4j }

// Connect builds the pooled driver, verifies connectivity and applies
// the schema catalog. Safe to call once per adapter.
func (a *neo4jAdapter) Connect(ctx context.Context) error {
	driver, err := neo4j.NewDriverWithContext(
		a.cfg.URI,
		neo4j.BasicAuth(a.cfg.Username, a.cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = a.cfg.PoolSize
			c.ConnectionAcquisitionTimeout = a.cfg.AcquireTimeout
			c.MaxConnectionLifetime = 1 * time.Hour
			c.ConnectionLivenessCheckTimeout = 5 * time.Second
			c.SocketConnectTimeout = 5 * time.Second
			c.SocketKeepalive = true
		},
	)
	if err != nil {
		return errors.Connectionf(err, "create neo4j driver for %s", a.cfg.URI)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, a.cfg.AcquireTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return errors.Connectionf(err, "verify neo4j connectivity at %s", a.cfg.URI)
	}
	a.driver = driver

	if err := a.applySchema(ctx); err != nil {
		_ = driver.Close(ctx)
		a.driver = nil
		return err
	}

	a.logger.Info("connected", "uri", a.cfg.URI, "database", a.cfg.Database, "pool_size", a.cfg.PoolSize)
	return nil
}

func (a *neo4jAdapter) Close(ctx context.Context) error {
	if a.driver == nil {
		return nil
	}
	err := a.driver.Close(ctx)
	a.driver = nil
	if err != nil {
		return errors.Connection(err, "close neo4j driver")
	}
	return nil
}

func (a *neo4jAdapter) HealthCheck(ctx context.Context) error {
	if a.driver == nil {
		return errNotConnected()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.driver.VerifyConnectivity(checkCtx); err != nil {
		return errors.Connection(err, "neo4j health check failed")
	}
	return nil
}

// applySchema runs the constraint and index catalog. Statements carry
// IF NOT EXISTS, so reconnects are idempotent.
func (a *neo4jAdapter) applySchema(ctx context.Context) error {
	for _, stmt := range SchemaFor(BackendNeo4j).All() {
		if _, err := a.run(ctx, stmt, nil); err != nil {
			return errors.Operation(err, fmt.Sprintf("apply schema statement %q", stmt), false)
		}
	}
	a.logger.Debug("schema applied", "database", a.cfg.Database)
	return nil
}

// run executes a write-routed query with the configured timeout.
func (a *neo4jAdapter) run(ctx context.Context, cypher string, params map[string]any, opts ...neo4j.ExecuteQueryConfigurationOption) ([]Record, error) {
	if a.driver == nil {
		return nil, errNotConnected()
	}
	if params == nil {
		params = map[string]any{}
	}

	queryCtx, cancel := context.WithTimeout(ctx, a.cfg.QueryTimeout)
	defer cancel()

	started := time.Now()
	opts = append(opts, neo4j.ExecuteQueryWithDatabase(a.cfg.Database))
	result, err := neo4j.ExecuteQuery(queryCtx, a.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, classifyNeo4jError(err, time.Since(started))
	}

	records := make([]Record, 0, len(result.Records))
	for _, rec := range result.Records {
		records = append(records, rec.AsMap())
	}
	return records, nil
}

// read executes with readers routing, spreading load in clustered setups.
func (a *neo4jAdapter) read(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return a.run(ctx, cypher, params, neo4j.ExecuteQueryWithReadersRouting())
}

func (a *neo4jAdapter) RunQuery(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return a.run(ctx, cypher, params)
}

func (a *neo4jAdapter) UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error) {
	if node == nil {
		return nil, errors.Validation("node must not be nil")
	}
	if err := ValidateLabels(node.Labels); err != nil {
		return nil, err
	}
	if err := ValidatePropertyKeys(node.Properties); err != nil {
		return nil, err
	}

	// An explicit id pins the match to one node regardless of keys.
	if node.ID != "" {
		records, err := a.run(ctx,
			"MATCH (n) WHERE elementId(n) = $id SET n += $props RETURN elementId(n) AS id, labels(n) AS labels",
			map[string]any{"id": node.ID, "props": node.Properties})
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, errors.EntityNotFound("node", node.ID)
		}
		return nodeFromUpsert(records[0], node.Properties), nil
	}

	keys, err := KeyProperties(BackendNeo4j, node.PrimaryLabel())
	if err != nil {
		return nil, err
	}
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeNode(node.Labels, keys, node.Properties, "elementId")
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

// UpsertNodes batches by primary label and merges each group in one
// UNWIND round trip.
func (a *neo4jAdapter) UpsertNodes(ctx context.Context, nodes []*models.GraphNode) (int, error) {
	if len(nodes) == 0 {
		return 0, nil
	}
	groups, order, err := groupNodesByLabel(BackendNeo4j, nodes)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, label := range order {
		group := groups[label]
		keys, err := KeyProperties(BackendNeo4j, label)
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

func (a *neo4jAdapter) DeleteNode(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Validation("node id must not be empty")
	}
	records, err := a.run(ctx,
		"MATCH (n) WHERE elementId(n) = $id DETACH DELETE n RETURN count(n) AS count",
		map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return countFromRecords(records) > 0, nil
}

func (a *neo4jAdapter) CreateRelationship(ctx context.Context, fromID, toID string, relType models.RelationshipType, props map[string]any) (*models.GraphRelationship, error) {
	if err := ValidateRelationshipType(relType); err != nil {
		return nil, err
	}
	if fromID == "" || toID == "" {
		return nil, errors.Validation("relationship endpoints must not be empty")
	}
	if err := ValidatePropertyKeys(props); err != nil {
		return nil, err
	}

	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeRelationship(string(relType), fromID, toID, props, "elementId")
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
	rel := &models.GraphRelationship{
		Type:       relType,
		FromID:     fromID,
		ToID:       toID,
		Properties: props,
	}
	if id, ok := records[0]["id"].(string); ok {
		rel.ID = id
	}
	return rel, nil
}

// CreateRelationships batches by type. Edges whose endpoints are gone
// simply match nothing; the returned count reflects merged edges only.
func (a *neo4jAdapter) CreateRelationships(ctx context.Context, rels []*models.GraphRelationship) (int, error) {
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
		batch := make([]map[string]any, len(group))
		for i, r := range group {
			props := r.Properties
			if props == nil {
				props = map[string]any{}
			}
			batch[i] = map[string]any{"from": r.FromID, "to": r.ToID, "props": props}
		}
		cypher := fmt.Sprintf(
			"UNWIND $rels AS rel "+
				"MATCH (a) WHERE elementId(a) = rel.from "+
				"MATCH (b) WHERE elementId(b) = rel.to "+
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

func (a *neo4jAdapter) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.Validation("relationship id must not be empty")
	}
	records, err := a.run(ctx,
		"MATCH ()-[r]->() WHERE elementId(r) = $id DELETE r RETURN count(r) AS count",
		map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return countFromRecords(records) > 0, nil
}

func (a *neo4jAdapter) Traverse(ctx context.Context, q TraversalQuery) (*TraversalResult, error) {
	start, err := a.resolveStart(ctx, q)
	if err != nil {
		return nil, err
	}

	cypher, params, err := a.dialect.buildTraversal(q)
	if err != nil {
		return nil, err
	}
	records, err := a.read(ctx, cypher, params)
	if err != nil {
		return nil, err
	}

	result := &TraversalResult{Start: start, Nodes: make([]TraversalNode, 0, len(records))}
	for _, rec := range records {
		result.Nodes = append(result.Nodes, recordToTraversalNode(rec))
	}
	return result, nil
}

// resolveStart looks up the traversal origin so callers get a stable
// EntityNotFound instead of an empty walk.
func (a *neo4jAdapter) resolveStart(ctx context.Context, q TraversalQuery) (*models.GraphNode, error) {
	cypher, params, err := a.dialect.buildResolveStart(q)
	if err != nil {
		return nil, err
	}
	records, err := a.read(ctx, cypher, params)
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

func (a *neo4jAdapter) AnalyzeDependencies(ctx context.Context, q DependencyQuery) (*DependencyResult, error) {
	return analyzeDependencies(ctx, a.dialect, a.read, q)
}

func (a *neo4jAdapter) GetContext(ctx context.Context, q ContextQuery) (*ContextResult, error) {
	return getContext(ctx, a.dialect, a.read, q)
}

// classifyNeo4jError folds driver errors into the typed taxonomy.
// Transient server codes and connectivity failures are retryable;
// everything else is a terminal operation error.
func classifyNeo4jError(err error, elapsed time.Duration) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout("neo4j query timed out", elapsed.Milliseconds())
	}
	if neo4j.IsConnectivityError(err) {
		return errors.Connection(err, "neo4j connection failed")
	}
	var serverErr *neo4j.Neo4jError
	if stderrors.As(err, &serverErr) {
		retryable := strings.HasPrefix(serverErr.Code, "Neo.TransientError")
		return errors.Operation(err, "neo4j query failed", retryable)
	}
	return errors.Operation(err, "neo4j query failed", false)
}

func errNotConnected() error {
	return errors.New(errors.KindConnection, "graph adapter is not connected")
}

// nodeFromUpsert merges a returned id and label set back onto the
// caller's property bag.
func nodeFromUpsert(rec Record, props map[string]any) *models.GraphNode {
	node := &models.GraphNode{ID: idToString(rec["id"]), Properties: props}
	if labels, ok := rec["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok {
				node.Labels = append(node.Labels, s)
			}
		}
	}
	return node
}

// groupNodesByLabel validates every node up front and buckets them by
// primary label, preserving first-seen order for determinism.
func groupNodesByLabel(backend Backend, nodes []*models.GraphNode) (map[string][]*models.GraphNode, []string, error) {
	groups := make(map[string][]*models.GraphNode)
	var order []string
	for _, node := range nodes {
		if node == nil {
			return nil, nil, errors.Validation("node must not be nil")
		}
		if err := ValidateLabels(node.Labels); err != nil {
			return nil, nil, err
		}
		if err := ValidatePropertyKeys(node.Properties); err != nil {
			return nil, nil, err
		}
		applySyntheticKeys(backend, node)
		label := node.PrimaryLabel()
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], node)
	}
	return groups, order, nil
}

func groupRelsByType(rels []*models.GraphRelationship) (map[models.RelationshipType][]*models.GraphRelationship, []models.RelationshipType, error) {
	groups := make(map[models.RelationshipType][]*models.GraphRelationship)
	var order []models.RelationshipType
	for _, rel := range rels {
		if rel == nil {
			return nil, nil, errors.Validation("relationship must not be nil")
		}
		if err := ValidateRelationshipType(rel.Type); err != nil {
			return nil, nil, err
		}
		if rel.FromID == "" || rel.ToID == "" {
			return nil, nil, errors.Validation("relationship endpoints must not be empty")
		}
		if err := ValidatePropertyKeys(rel.Properties); err != nil {
			return nil, nil, err
		}
		if _, seen := groups[rel.Type]; !seen {
			order = append(order, rel.Type)
		}
		groups[rel.Type] = append(groups[rel.Type], rel)
	}
	return groups, order, nil
}

// buildUnwindMerge renders the batched node merge. Label and keys are
// validated by the caller before interpolation.
func buildUnwindMerge(label string, keys []string) string {
	keyClauses := make([]string, len(keys))
	for i, k := range keys {
		keyClauses[i] = fmt.Sprintf("%s: node.%s", k, k)
	}
	return fmt.Sprintf(
		"UNWIND $nodes AS node MERGE (n:%s {%s}) SET n += node RETURN count(n) AS count",
		label, strings.Join(keyClauses, ", "))
}

func countFromRecords(records []Record) int {
	if len(records) == 0 {
		return 0
	}
	if count, ok := records[0]["count"].(int64); ok {
		return int(count)
	}
	return 0
}
