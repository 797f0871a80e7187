// internal/firmware/version.go
package firmware

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"superkey-service/internal/transport"
)

// versionPattern matches the device's version report, e.g.
// FW_VERSION:release1.1.2 or FW_VERSION:dev1.0.0.
var versionPattern = regexp.MustCompile(`FW_VERSION:(release|dev)(\d+)\.(\d+)\.(\d+)`)

const versionResponseWait = 500 * time.Millisecond

// Version is a parsed device firmware version.
type Version struct {
	Channel string `json:"channel"`
	Major   int    `json:"major"`
	Minor   int    `json:"minor"`
	Patch   int    `json:"patch"`
	Raw     string `json:"raw"`
}

func (v Version) String() string {
	return fmt.Sprintf("%s%d.%d.%d", v.Channel, v.Major, v.Minor, v.Patch)
}

// QueryLink is the transport surface the checker needs.
type QueryLink interface {
	IsConnected() bool
	Send(data string, format transport.DataFormat) error
	Receive(format transport.DataFormat) string
	ClearReceiveBuffer()
}

// VersionChecker queries the running firmware's version over the
// serial link.
type VersionChecker struct {
	link QueryLink
}

// NewVersionChecker creates a version checker bound to the transport.
func NewVersionChecker(link QueryLink) *VersionChecker {
	return &VersionChecker{link: link}
}

// Check sends the version query and waits briefly for the device's
// response. The receive buffer is cleared first so stale output
// cannot satisfy the pattern.
func (c *VersionChecker) Check() (Version, error) {
	if !c.link.IsConnected() {
		return Version{}, transport.ErrNotConnected
	}

	c.link.ClearReceiveBuffer()
	if err := c.link.Send("sys_get version\n", transport.FormatASCII); err != nil {
		return Version{}, fmt.Errorf("send version query: %w", err)
	}

	time.Sleep(versionResponseWait)
	response := c.link.Receive(transport.FormatASCII)

	version, ok := ParseVersion(response)
	if !ok {
		return Version{}, fmt.Errorf("no version in device response")
	}
	return version, nil
}

// ParseVersion extracts a firmware version from raw device output.
func ParseVersion(s string) (Version, bool) {
	match := versionPattern.FindStringSubmatch(s)
	if match == nil {
		return Version{}, false
	}

	major, _ := strconv.Atoi(match[2])
	minor, _ := strconv.Atoi(match[3])
	patch, _ := strconv.Atoi(match[4])

	return Version{
		Channel: match[1],
		Major:   major,
		Minor:   minor,
		Patch:   patch,
		Raw:     match[0],
	}, true
}
