package observability

import (
	"io"

	"go.opentelemetry.io/otel/sdk/resource"
)

// ProbeBuildResource exposes buildResource for tests.
func ProbeBuildResource(cfg Config) (*resource.Resource, error) {
	return buildResource(cfg)
}

// InitWithWriter exposes initWithWriter for tests.
func InitWithWriter(cfg Config, out io.Writer) (Providers, error) {
	return initWithWriter(cfg, out)
}
