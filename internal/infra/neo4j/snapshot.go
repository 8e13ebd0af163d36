package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/gdp-network/gdpnet/internal/domain"
	"github.com/gdp-network/gdpnet/internal/infra/dberror"
)

// Provider implements domain.SnapshotProvider over the referral graph.
type Provider struct {
	client *Client
	now    func() time.Time
}

var _ domain.SnapshotProvider = (*Provider)(nil)

// NewProvider creates a snapshot provider.
func NewProvider(client *Client) *Provider {
	return &Provider{client: client, now: time.Now}
}

// snapshotQuery returns every path of 1..depth referrals ending at the root.
// Variable-length bounds cannot be parameters, so depth is formatted in.
func snapshotQuery(depth int) string {
	return fmt.Sprintf(`
		MATCH (root:User {id: $id})
		OPTIONAL MATCH p = (root)<-[:REFERRED_BY*1..%d]-(d:User)
		RETURN root.value AS root_value,
		       d.id AS id,
		       [n IN nodes(p) | n.id][-2] AS parent_id,
		       d.value AS value,
		       length(p) AS depth`, depth)
}

// Snapshot runs the path query in one read transaction.
func (p *Provider) Snapshot(ctx context.Context, userID string, maxDepth int) (*domain.NetworkSnapshot, error) {
	depth := min(max(maxDepth, 1), domain.MaxTierGenerations)

	session := p.client.Session(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, snapshotQuery(depth), map[string]any{"id": userID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, dberror.Wrap("neo4j.snapshot", err)
	}

	rootValue, rows, err := rowsFromRecords(records.([]*neo4j.Record))
	if err != nil {
		return nil, err
	}
	return domain.BuildSnapshot(userID, rootValue, rows, maxDepth, p.now()), nil
}

// rowsFromRecords converts query records. No records means the root does
// not exist; a record with a null id is the root without descendants.
func rowsFromRecords(records []*neo4j.Record) (float64, []domain.DescendantRow, error) {
	if len(records) == 0 {
		return 0, nil, domain.ErrUserNotFound
	}

	rootValue, err := toFloat(get(records[0], "root_value"))
	if err != nil {
		return 0, nil, fmt.Errorf("root_value: %w", err)
	}

	rows := make([]domain.DescendantRow, 0, len(records))
	for _, rec := range records {
		id, _ := get(rec, "id").(string)
		if id == "" {
			continue
		}
		parent, _ := get(rec, "parent_id").(string)
		value, err := toFloat(get(rec, "value"))
		if err != nil {
			return 0, nil, fmt.Errorf("user %s value: %w", id, err)
		}
		depth, ok := get(rec, "depth").(int64)
		if !ok {
			return 0, nil, fmt.Errorf("user %s: depth is %T", id, get(rec, "depth"))
		}
		rows = append(rows, domain.DescendantRow{UserID: id, ParentID: parent, Value: value, Depth: int(depth)})
	}
	return rootValue, rows, nil
}

func get(rec *neo4j.Record, key string) any {
	v, _ := rec.Get(key)
	return v
}

// toFloat accepts the numeric types the driver returns. Null is zero.
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", v)
	}
}
