package httpapi

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestShouldCreateHTTPAPISpan(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{name: "handler span", in: "httpapi.Handler.GetMatchDigest", want: true},
		{name: "middleware span", in: "httpapi.RequestLogging", want: false},
		{name: "helper span", in: "httpapi.writeError", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shouldCreateHTTPAPISpan(tt.in)
			if got != tt.want {
				t.Fatalf("shouldCreateHTTPAPISpan(%q)=%v want=%v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStartSpan_WithoutParentIsNoop(t *testing.T) {
	ctx := context.Background()
	got, span := startSpan(ctx, "httpapi.Handler.GetMatchDigest", attribute.String("fixture.id", "1"))
	defer span.End()

	if got != ctx {
		t.Fatalf("expected the same context without a parent span")
	}
	if span.SpanContext().IsValid() {
		t.Fatalf("expected a no-op span without a parent span")
	}
	annotateRequest(got, attribute.String("fixture.id", "1"))
}
