package config

// ConfigBackend abstracts config storage behind dotted keys
// (e.g. "server.port"). The default backend is a YAML file in the
// XDG config directory.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
