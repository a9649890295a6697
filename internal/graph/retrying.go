package graph

import (
	"context"

	"github.com/codegraphhq/codegraph/internal/models"
	"github.com/codegraphhq/codegraph/internal/retry"
)

// retryingAdapter applies the backoff policy around every backend call.
// Writes are MERGE-based and deletes are idempotent, so replaying a
// retryable failure is safe. Validation errors never retry; the policy
// predicate filters on the typed taxonomy.
type retryingAdapter struct {
	inner  Adapter
	policy *retry.Config
}

func newRetryingAdapter(inner Adapter, policy *retry.Config) *retryingAdapter {
	return &retryingAdapter{inner: inner, policy: policy}
}

func retryValue[T any](ctx context.Context, policy *retry.Config, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.DoWithConfig(ctx, policy, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

func (r *retryingAdapter) Backend() Backend { return r.inner.Backend() }

func (r *retryingAdapter) Connect(ctx context.Context) error {
	return retry.DoWithConfig(ctx, r.policy, r.inner.Connect)
}

func (r *retryingAdapter) Close(ctx context.Context) error {
	return r.inner.Close(ctx)
}

func (r *retryingAdapter) HealthCheck(ctx context.Context) error {
	return r.inner.HealthCheck(ctx)
}

func (r *retryingAdapter) RunQuery(ctx context.Context, cypher string, params map[string]any) ([]Record, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) ([]Record, error) {
		return r.inner.RunQuery(ctx, cypher, params)
	})
}

func (r *retryingAdapter) UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*models.GraphNode, error) {
		return r.inner.UpsertNode(ctx, node)
	})
}

func (r *retryingAdapter) UpsertNodes(ctx context.Context, nodes []*models.GraphNode) (int, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (int, error) {
		return r.inner.UpsertNodes(ctx, nodes)
	})
}

func (r *retryingAdapter) DeleteNode(ctx context.Context, id string) (bool, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (bool, error) {
		return r.inner.DeleteNode(ctx, id)
	})
}

func (r *retryingAdapter) CreateRelationship(ctx context.Context, fromID, toID string, relType models.RelationshipType, props map[string]any) (*models.GraphRelationship, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*models.GraphRelationship, error) {
		return r.inner.CreateRelationship(ctx, fromID, toID, relType, props)
	})
}

func (r *retryingAdapter) CreateRelationships(ctx context.Context, rels []*models.GraphRelationship) (int, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (int, error) {
		return r.inner.CreateRelationships(ctx, rels)
	})
}

func (r *retryingAdapter) DeleteRelationship(ctx context.Context, id string) (bool, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (bool, error) {
		return r.inner.DeleteRelationship(ctx, id)
	})
}

func (r *retryingAdapter) Traverse(ctx context.Context, q TraversalQuery) (*TraversalResult, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*TraversalResult, error) {
		return r.inner.Traverse(ctx, q)
	})
}

func (r *retryingAdapter) AnalyzeDependencies(ctx context.Context, q DependencyQuery) (*DependencyResult, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*DependencyResult, error) {
		return r.inner.AnalyzeDependencies(ctx, q)
	})
}

func (r *retryingAdapter) GetContext(ctx context.Context, q ContextQuery) (*ContextResult, error) {
	return retryValue(ctx, r.policy, func(ctx context.Context) (*ContextResult, error) {
		return r.inner.GetContext(ctx, q)
	})
}
