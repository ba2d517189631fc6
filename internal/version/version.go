package version

// Version is the current version of meshroom.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/keiu-jiyu/VideoChat/internal/version.Version=v1.0.0'"
var Version = "dev"
