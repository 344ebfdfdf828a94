package otel

import (
	"context"
	"testing"
)

func TestSetupIsNoopWithoutEndpoint(t *testing.T) {
	t.Setenv(EndpointEnv, "")
	shutdown, err := Setup(context.Background(), "counterd")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupHonoursDisableFlag(t *testing.T) {
	t.Setenv(EnabledEnv, "false")
	t.Setenv(EndpointEnv, "http://127.0.0.1:4318")
	shutdown, err := Setup(context.Background(), "counterd")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
