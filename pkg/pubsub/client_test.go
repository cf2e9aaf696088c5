package pubsub

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/dealroom-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	tests := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "dealroom-domain-events", "projects/proj/topics/dealroom-domain-events"},
		{"proj", "subscriptions", " rooms-sub ", "projects/proj/subscriptions/rooms-sub"},
		{"proj", "topics", "projects/other/topics/t1", "projects/other/topics/t1"},
		{"proj", "topics", "", ""},
		{"", "topics", "t1", ""},
	}
	for _, tt := range tests {
		if got := resourceName(tt.project, tt.kind, tt.name); got != tt.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q want %q", tt.project, tt.kind, tt.name, got, tt.want)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected errNotInitialized, got %v", err)
	}
	if c.Publisher("t1") != nil {
		t.Fatal("nil client must not hand out publishers")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.PubSubConfig{DomainTopic: "t"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected errProjectIDRequired, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil); !errors.Is(err, errNoDomainTopic) {
		t.Fatalf("expected errNoDomainTopic, got %v", err)
	}
}
