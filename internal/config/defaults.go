package config

const (
	defaultRegistryDir           = "~/.local/share/hearth/registry"
	defaultRuntimeDir            = "~/.local/share/hearth/run"
	defaultLogDir                = "~/.local/share/hearth/logs"
	defaultRegistryBackend       = RegistryBackendFile
	defaultLockRetryMillis       = 50
	defaultConnectTimeoutMillis  = 2000
	defaultStartTimeoutSeconds   = 30
	defaultDeadlineSeconds       = 60
	defaultPollIntervalMillis    = 100
	defaultMaxPollIntervalMillis = 1600
	defaultRetryBudget           = 3
	defaultDaemonTransport       = TransportUnix
	defaultIdleTimeoutSeconds    = 3 * 60 * 60
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RegistryDir: defaultRegistryDir,
			RuntimeDir:  defaultRuntimeDir,
			LogDir:      defaultLogDir,
		},
		Registry: Registry{
			Backend:         defaultRegistryBackend,
			LockRetryMillis: defaultLockRetryMillis,
		},
		Connector: Connector{
			ConnectTimeoutMillis:  defaultConnectTimeoutMillis,
			StartTimeoutSeconds:   defaultStartTimeoutSeconds,
			DeadlineSeconds:       defaultDeadlineSeconds,
			PollIntervalMillis:    defaultPollIntervalMillis,
			MaxPollIntervalMillis: defaultMaxPollIntervalMillis,
			RetryBudget:           defaultRetryBudget,
		},
		Daemon: Daemon{
			Transport:          defaultDaemonTransport,
			IdleTimeoutSeconds: defaultIdleTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
