// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
)

const (
	kindTopics        = "topics"
	kindSubscriptions = "subscriptions"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoDomainTopic     = errors.New("pubsub domain topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client publishes to pre-provisioned topics. It never creates resources:
// topics and subscriptions are owned by infrastructure, and a missing one is
// reported as a configuration error.
type Client struct {
	client    *gcppubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient dials Pub/Sub and verifies every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	switch {
	case projectID == "":
		return nil, errProjectIDRequired
	case strings.TrimSpace(cfg.DomainTopic) == "":
		return nil, errNoDomainTopic
	}

	raw, err := gcppubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{client: raw, projectID: projectID, cfg: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     cfg.Topics(),
		})
		logg.Info(ctx, "pubsub.connected")
	}
	return c, nil
}

// Ping checks that every topic, and the domain subscription when configured,
// still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	for _, topic := range c.cfg.Topics() {
		if err := c.checkExists(ctx, kindTopics, topic); err != nil {
			return err
		}
	}
	if sub := strings.TrimSpace(c.cfg.DomainSubscription); sub != "" {
		return c.checkExists(ctx, kindSubscriptions, sub)
	}
	return nil
}

func (c *Client) checkExists(ctx context.Context, kind, name string) error {
	full := resourceName(c.projectID, kind, name)
	if full == "" {
		return fmt.Errorf("%s %q not configured", kind, name)
	}

	var err error
	switch kind {
	case kindTopics:
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	default:
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: full})
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("check %s %q: %w", kind, name, err)
	}
}

// Publisher returns a handle for topic, given as an ID or full resource name.
// Handles are not cached here; the caller owns their lifecycle.
func (c *Client) Publisher(topic string) *gcppubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, kindTopics, topic)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a short ID into projects/<p>/<kind>/<id>. Names
// already in that form are returned unchanged.
func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return "projects/" + p + "/" + kind + "/" + n
}
