package config

const (
	defaultLibraryDir    = "~/library"
	defaultLogDir        = "~/.local/share/seedshelf/logs"
	defaultStateDir      = "~/.local/share/seedshelf/state"
	defaultMoviesDir     = "Movies"
	defaultTVDir         = "TV Shows"
	defaultMaxConcurrent = 2
	defaultLogFormat     = ""
	defaultLogLevel      = "info"
	defaultNtfyTimeout   = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
		},
		Library: Library{
			Enabled:   true,
			MoviesDir: defaultMoviesDir,
			TVDir:     defaultTVDir,
		},
		Conversion: Conversion{
			MaxConcurrent: defaultMaxConcurrent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
