// Package neo4j reads the curriculum graph: topics connected by
// PREREQUISITE_OF and RELATED_TO edges. The graph is authored by curriculum
// tooling; this client only expands classified topics with their neighbors.
package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/tutor-agent/backend/pkg/circuitbreaker"
	"github.com/tutor-agent/backend/pkg/logger"
	"github.com/tutor-agent/backend/pkg/retry"
)

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type RelatedTopic struct {
	TopicID  string
	Title    string
	Relation string
	Weight   float64
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// RelatedTopics returns up to limit topics adjacent to the given ones,
// nearest-weighted first. Topics already in topicIDs are excluded.
func (c *Client) RelatedTopics(ctx context.Context, topicIDs []string, limit int) ([]RelatedTopic, error) {
	if len(topicIDs) == 0 || limit <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var related []RelatedTopic

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)

			query := `
				MATCH (t:Topic)-[r:PREREQUISITE_OF|RELATED_TO]-(n:Topic)
				WHERE t.id IN $topic_ids AND NOT n.id IN $topic_ids
				RETURN DISTINCT n.id AS id, n.title AS title, type(r) AS relation,
					coalesce(r.weight, 0.5) AS weight
				ORDER BY weight DESC
				LIMIT $limit
			`

			result, err := session.Run(ctx, query, map[string]interface{}{
				"topic_ids": topicIDs,
				"limit":     limit,
			})
			if err != nil {
				return fmt.Errorf("failed to query related topics: %w", err)
			}

			related = related[:0]
			for result.Next(ctx) {
				record := result.Record()
				id, _ := record.Get("id")
				title, _ := record.Get("title")
				relation, _ := record.Get("relation")
				weight, _ := record.Get("weight")

				rt := RelatedTopic{Relation: fmt.Sprintf("%v", relation)}
				if s, ok := id.(string); ok {
					rt.TopicID = s
				}
				if s, ok := title.(string); ok {
					rt.Title = s
				}
				if f, ok := weight.(float64); ok {
					rt.Weight = f
				}
				related = append(related, rt)
			}

			return result.Err()
		})
	})

	if err != nil {
		return nil, err
	}

	logger.Debug("Related topics expanded",
		zap.Int("seed_topics", len(topicIDs)),
		zap.Int("related", len(related)),
	)

	return related, nil
}
