package version

// Version and Commit are overridden at build time with
// -ldflags "-X commetrics-server/pkg/version.Version=... -X commetrics-server/pkg/version.Commit=..."
var (
	Version = "1.2.0"
	Commit  = "unknown"
)

// ServerHeader is the Server header value sent on every HTTP response
func ServerHeader() string {
	return "commetrics/" + Version
}
