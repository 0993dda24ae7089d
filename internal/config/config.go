package config

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Annotator AnnotatorConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type AnnotatorConfig struct {
	ID string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4500,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Annotator: AnnotatorConfig{
			ID: "default",
		},
	}
}

// Load reads configuration from the YAML config file at
// $XDG_CONFIG_HOME/labelbench/config.yaml, then applies environment
// overrides (LABELBENCH_*). The API token is a secret and only ever comes
// from the environment; when it is unset, the server runs without auth.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}
