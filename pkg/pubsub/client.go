// Package pubsub wraps the Pub/Sub v2 client for the outbox relay: topic
// checks at startup, ordered publishing and broker error classification.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tillpoint/epos-backend/pkg/config"
	"github.com/tillpoint/epos-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// topicAdmin is the slice of the admin API used for topic checks.
type topicAdmin interface {
	exists(ctx context.Context, topic string) (bool, error)
	create(ctx context.Context, topic string) error
}

type Client struct {
	client    *pubsub.Client
	admin     topicAdmin
	projectID string
	topics    []string
	create    bool
}

// NewClient connects to Pub/Sub and verifies the configured topics, creating
// them first when cfg.CreateTopics is set. PUBSUB_EMULATOR_HOST is honored
// by the client library.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	ps, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    ps,
		admin:     adminAPI{ps},
		projectID: projectID,
		topics:    topicNames(cfg),
		create:    cfg.CreateTopics,
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     c.topics,
		}), "pubsub client initialized")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.OrdersTopic, cfg.ProductsTopic} {
		name = strings.TrimSpace(name)
		if name != "" && !contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (c *Client) checkTopics(ctx context.Context) error {
	if len(c.topics) == 0 {
		return errNoTopics
	}
	for _, name := range c.topics {
		full := topicResourceName(c.projectID, name)
		if full == "" {
			return fmt.Errorf("topic %q not configured", name)
		}
		ok, err := c.admin.exists(ctx, full)
		if err != nil {
			return fmt.Errorf("checking topic %q: %w", name, err)
		}
		if ok {
			continue
		}
		if !c.create {
			return fmt.Errorf("topic %q does not exist", name)
		}
		if err := c.admin.create(ctx, full); err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("creating topic %q: %w", name, err)
		}
	}
	return nil
}

// Publisher returns a publisher handle for a topic id or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping checks the configured topics are still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.admin == nil {
		return errNotInitialized
	}
	return c.checkTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsPermanent reports whether a publish error will fail the same way on
// retry.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	default:
		return false
	}
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}

type adminAPI struct {
	client *pubsub.Client
}

func (a adminAPI) exists(ctx context.Context, topic string) (bool, error) {
	_, err := a.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
	switch {
	case err == nil:
		return true, nil
	case status.Code(err) == codes.NotFound:
		return false, nil
	default:
		return false, err
	}
}

func (a adminAPI) create(ctx context.Context, topic string) error {
	_, err := a.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
	return err
}
