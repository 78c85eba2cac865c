package config

const (
	DefaultDockerfile    = "Dockerfile"
	DefaultContainerName = "shakedown-app"
	DefaultPort          = "8000:8000"
	DefaultStartupWait   = "10s"
	DefaultLogTail       = 100
	DefaultStopTimeout   = "10s"
	DefaultHistoryPath   = ".shakedown/history.db"
	DefaultTriggerBranch = "main"
	DefaultTriggerAddr   = ":9464"

	DefaultUsernameEnv = "SHAKEDOWN_REGISTRY_USER"
	DefaultPasswordEnv = "SHAKEDOWN_REGISTRY_PASSWORD"
	DefaultSecretEnv   = "SHAKEDOWN_WEBHOOK_SECRET"
)

// DefaultConfig is the starting point LoadConfig layers file and env
// values onto. Image has no default: every deployment names its own
// reference.
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			UsernameEnv: DefaultUsernameEnv,
			PasswordEnv: DefaultPasswordEnv,
		},
		Source: SourceConfig{
			Dir:        ".",
			Dockerfile: DefaultDockerfile,
		},
		Container: ContainerConfig{
			Name:        DefaultContainerName,
			Port:        DefaultPort,
			StartupWait: DefaultStartupWait,
		},
		Verify: VerifyConfig{
			Mode:    VerifyObserve,
			LogTail: DefaultLogTail,
		},
		Cleanup: CleanupConfig{
			StopTimeout: DefaultStopTimeout,
		},
		History: HistoryConfig{
			Path: DefaultHistoryPath,
		},
		Trigger: TriggerConfig{
			Branch:    DefaultTriggerBranch,
			Addr:      DefaultTriggerAddr,
			SecretEnv: DefaultSecretEnv,
		},
	}
}
