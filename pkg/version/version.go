package version

// Set at link time with -ldflags "-X github.com/charlie0129/lcqe/pkg/version.Version=...".
var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
)
