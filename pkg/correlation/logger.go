package correlation

import (
	"context"

	"github.com/sirupsen/logrus"
)

// ContextFields extracts all correlation fields from a context
func ContextFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}

	if id := FromContext(ctx); !id.IsEmpty() {
		fields["correlation_id"] = id.String()
	}

	if ip := ClientIPFromContext(ctx); ip != "" {
		fields["client_ip"] = ip
	}

	if method := MethodFromContext(ctx); method != "" {
		fields["method"] = method
	}

	return fields
}

// LoggerFromContext returns an entry carrying the correlation fields of ctx
func LoggerFromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return logger.WithFields(ContextFields(ctx))
}
