package buildinfo

// Version is overridden at link time:
//
//	go build -ldflags "-X go2tv.app/screencast/internal/buildinfo.Version=v1.2.3"
var Version = "dev"
