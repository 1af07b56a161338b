// Package buildinfo holds build-time metadata kept separate from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata not injected at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
type Context struct {
	// Version holds the Git version tag from build
	Version string

	// BuildDate is the time when the binary was built
	BuildDate string
}

// NewContext returns build metadata. Empty values read as UnknownValue.
func NewContext(version, buildDate string) *Context {
	return &Context{Version: version, BuildDate: buildDate}
}

// GetVersion returns the version or UnknownValue.
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return UnknownValue
	}
	return c.Version
}

// GetBuildDate returns the build date or UnknownValue.
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}

// String formats the metadata for --version, logs and the health endpoint.
func (c *Context) String() string {
	if c.GetBuildDate() == UnknownValue {
		return c.GetVersion()
	}
	return fmt.Sprintf("%s (built %s)", c.GetVersion(), c.GetBuildDate())
}
