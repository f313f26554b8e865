package config

// NewAnalyticsForTest creates an Analytics config for testing purposes
func NewAnalyticsForTest(settingsPath string, syncWindowDays int) *Analytics {
	return &Analytics{
		settingsPath: settingsPath,
		syncWindow:   syncWindowDays,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

// NewAtlassianForTest creates an Atlassian config for testing purposes
func NewAtlassianForTest(clientID, clientSecret, redirectURI, encryptionKey, sessionSecret string) *Atlassian {
	return &Atlassian{
		clientID:      clientID,
		clientSecret:  clientSecret,
		redirectURI:   redirectURI,
		encryptionKey: encryptionKey,
		sessionSecret: sessionSecret,
	}
}
