package config

import "path/filepath"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Run: RunConfig{
			Environment:  "local",
			Target:       "storefront",
			ArtifactsDir: filepath.Join(".storecheck", "artifacts"),
			Format:       "json",
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelayMs: 1000,
			Backoff:        "exponential",
		},
		Browser: BrowserConfig{
			Headless:            true,
			BaseURL:             "http://localhost:3000",
			WindowWidth:         1920,
			WindowHeight:        1080,
			TimeoutSeconds:      10,
			ScreenshotOnFailure: true,
		},
		API: APIConfig{
			BaseURL:        "http://localhost:3000/api",
			TimeoutSeconds: 30,
		},
		Load: LoadConfig{
			VirtualUsers: 5,
			Iterations:   10,
		},
		History: HistoryConfig{
			DatabasePath: filepath.Join(".storecheck", "history.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
