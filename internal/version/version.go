package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Name identifies this client to tool servers and in CLI output.
const Name = "toolmesh"

const sdkModule = "github.com/modelcontextprotocol/go-sdk"

var (
	// Version is set at build time using -ldflags and falls back to the
	// module version embedded by go install.
	Version = "dev"

	sdkVersion = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	for _, dep := range info.Deps {
		if dep.Path == sdkModule {
			sdkVersion = dep.Version
			break
		}
	}
}

// Info describes the running build.
type Info struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	SDK      string `json:"mcp_sdk"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

// Current returns the build description.
func Current() Info {
	return Info{
		Name:     Name,
		Version:  Version,
		SDK:      sdkVersion,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders the version line printed by the CLI.
func String() string {
	info := Current()
	return fmt.Sprintf("%s %s %s (mcp sdk %s)", info.Name, info.Version, info.Platform, info.SDK)
}
