package scans

import "strings"

// Device classes.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Rule labels a user agent when Match reports true for its lowercased form.
type Rule struct {
	Label string
	Match func(ua string) bool
}

// Classification is the device/OS/browser triple derived from a user agent.
// OS and Browser are empty when no rule matched.
type Classification struct {
	Device  string
	OS      string
	Browser string
}

func containsAny(tokens ...string) func(string) bool {
	return func(ua string) bool {
		for _, t := range tokens {
			if strings.Contains(ua, t) {
				return true
			}
		}

		return false
	}
}

func containsNone(tokens ...string) func(string) bool {
	match := containsAny(tokens...)

	return func(ua string) bool { return !match(ua) }
}

func allOf(preds ...func(string) bool) func(string) bool {
	return func(ua string) bool {
		for _, p := range preds {
			if !p(ua) {
				return false
			}
		}

		return true
	}
}

// Rules are evaluated in order and the first match wins, so more specific
// tokens must come before tokens that other agents embed for compatibility.
var (
	DeviceRules = []Rule{
		{Label: DeviceMobile, Match: containsAny("mobile", "iphone", "android", "ipod")},
		{Label: DeviceTablet, Match: containsAny("ipad", "tablet")},
	}

	OSRules = []Rule{
		{Label: "android", Match: containsAny("android")},
		{Label: "ios", Match: containsAny("iphone", "ipad", "ipod", "ios")},
		{Label: "windows", Match: containsAny("windows")},
		{Label: "macos", Match: containsAny("mac os x", "macintosh")},
		{Label: "chromeos", Match: containsAny("cros")},
		{Label: "linux", Match: containsAny("linux")},
	}

	BrowserRules = []Rule{
		{Label: "yandex", Match: containsAny("yabrowser", "yandex")},
		{Label: "opera", Match: containsAny("opr/", "opera")},
		{Label: "edge", Match: containsAny("edg/", "edge")},
		{Label: "samsung", Match: containsAny("samsungbrowser")},
		{Label: "firefox", Match: containsAny("firefox", "fxios")},
		{Label: "chrome", Match: containsAny("crios")},
		{Label: "chrome", Match: allOf(
			containsAny("chrome"),
			containsNone("chromium", "edg", "opr", "yabrowser"),
		)},
		{Label: "safari", Match: containsAny("safari")},
		{Label: "brave", Match: containsAny("brave")},
	}
)

// FirstMatch returns the label of the first rule matching ua, or "".
// ua must already be lowercased.
func FirstMatch(rules []Rule, ua string) string {
	for _, r := range rules {
		if r.Match(ua) {
			return r.Label
		}
	}

	return ""
}

// Classify derives the device class, OS and browser of a raw user agent.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)

	device := FirstMatch(DeviceRules, ua)
	if device == "" {
		device = DeviceDesktop
	}

	return Classification{
		Device:  device,
		OS:      FirstMatch(OSRules, ua),
		Browser: FirstMatch(BrowserRules, ua),
	}
}
