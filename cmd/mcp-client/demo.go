package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/esp32-mcp/mcp-client-go/pkg/session"
)

// runDemo lists the server's resources, reads each one, and subscribes to
// the given URIs. Updates are printed to out until the session is closed.
func runDemo(ctx context.Context, s *session.Session, out io.Writer, subscribe []string) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	resources, err := s.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}
	printf("Available resources (%d):\n", len(resources))
	for _, r := range resources {
		printf("  %-24s %-20s %s\n", r.URI, r.Name, r.Type)
	}

	for _, r := range resources {
		data, err := s.ReadResource(ctx, r.URI)
		if err != nil {
			printf("  %s: %v\n", r.URI, err)
			continue
		}
		printf("%s: %s\n", r.URI, compact(data))
	}

	for _, uri := range subscribe {
		ok, err := s.Subscribe(ctx, uri, func(data json.RawMessage) {
			printf("[UPDATE] %s: %s\n", uri, compact(data))
		})
		switch {
		case err != nil:
			return fmt.Errorf("subscribe %s: %w", uri, err)
		case !ok:
			printf("Subscription to %s rejected\n", uri)
		default:
			printf("Subscribed to %s\n", uri)
		}
	}
	return nil
}

// compact renders JSON on one line, or as-is if it does not parse.
func compact(data json.RawMessage) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return string(data)
	}
	return string(b)
}
