package constants

const (
	Version        = `0.0.1`
	ConfigFile     = `cfg`
	ConfigFileType = `yaml`
	ConfigDir      = `/.ebref/`
	EnvPrefix      = `EBREF`
)
