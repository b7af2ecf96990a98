package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is what audit records keep about the calling client
type DeviceInfo struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "sm-t", "nexus 7", "nexus 9"}

// ParseUserAgent parses a User-Agent string into DeviceInfo
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         "Unknown",
		Browser:    "Unknown",
		IsBot:      parser.Bot(),
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
		lower := strings.ToLower(userAgent)
		for _, marker := range tabletMarkers {
			if strings.Contains(lower, marker) {
				info.DeviceType = "tablet"
				break
			}
		}
	}

	if os := parser.OSInfo(); os.Name != "" {
		info.OS = strings.TrimSpace(os.Name + " " + os.Version)
	}
	if name, version := parser.Browser(); name != "" {
		info.Browser = strings.TrimSpace(name + " " + version)
	}

	return info
}

// Summary renders the device as a short label, e.g. "mobile/Android 12/Chrome 96.0"
func (d DeviceInfo) Summary() string {
	if d.IsBot {
		return "bot/" + d.Browser
	}
	return d.DeviceType + "/" + d.OS + "/" + d.Browser
}
