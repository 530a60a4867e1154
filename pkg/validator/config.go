package validator

// Config controls which lint rules run.
type Config struct {
	// ReportUnreferenced warns about css/js files no html file links to.
	ReportUnreferenced bool
	// CheckAnchors warns about relative links that would render the 404 page.
	CheckAnchors bool
}

func DefaultConfig() Config {
	return Config{
		ReportUnreferenced: true,
		CheckAnchors:       true,
	}
}
