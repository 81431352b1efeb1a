package scrapers

import "math/rand"

// headerProfile is one coherent browser identity sent with rendered requests.
type headerProfile struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	Platform       string
	Mobile         bool
}

// headerStrategy groups profiles by approach. Strategies are tried in order
// when a category page refuses to yield product cards.
type headerStrategy string

const (
	strategyDesktopBrowser headerStrategy = "desktop_browser"
	strategyMobileDevice   headerStrategy = "mobile_device"
)

var desktopProfiles = []headerProfile{
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       `"macOS"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       `"Windows"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       `"macOS"`,
	},
}

var mobileProfiles = []headerProfile{
	{
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 18_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Mobile/15E148 Safari/604.1",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       `"iOS"`,
		Mobile:         true,
	},
	{
		UserAgent:      "Mozilla/5.0 (Linux; Android 14; Pixel 8 Pro) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Mobile Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       `"Android"`,
		Mobile:         true,
	},
}

func profileFor(strategy headerStrategy) headerProfile {
	switch strategy {
	case strategyMobileDevice:
		return mobileProfiles[rand.Intn(len(mobileProfiles))]
	default:
		return desktopProfiles[rand.Intn(len(desktopProfiles))]
	}
}

func allStrategies() []headerStrategy {
	return []headerStrategy{strategyDesktopBrowser, strategyMobileDevice}
}
