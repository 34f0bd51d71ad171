package useragent

// Breakpoints used when the User-Agent alone is inconclusive. They mirror
// common CSS breakpoints rather than any exact device database.
const (
	mobileMaxWidth = 600
	tabletMaxWidth = 1024
)

// ClassifyDevice resolves a device type from screen dimensions and a parsed
// User-Agent. The UA verdict wins; screen width only breaks ties when the UA
// carried no device signal at all.
func ClassifyDevice(screenWidth, screenHeight int, ua UserAgent) string {
	switch {
	case ua.Tablet:
		return "tablet"
	case ua.Mobile:
		return "mobile"
	case ua.Desktop:
		return "desktop"
	}

	if screenWidth <= 0 {
		return ""
	}

	// Treat a portrait viewport by its larger dimension so rotated tablets
	// are not misclassified as phones.
	width := screenWidth
	if screenHeight > width {
		width = screenHeight
	}

	switch {
	case width <= mobileMaxWidth:
		return "mobile"
	case width <= tabletMaxWidth:
		return "tablet"
	default:
		return "desktop"
	}
}
