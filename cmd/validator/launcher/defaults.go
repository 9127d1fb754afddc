package launcher

import "os"

// keystorePwdEnv names the environment variable holding the keystore
// password. There is no flag for it.
const keystorePwdEnv = "KEYSTORE_PWD"

// Launcher defaults before the preset, the config file and the flags apply.
const (
	DefaultAdapter = AdapterEthereum
	// DefaultCacheMB sizes the journal database cache.
	DefaultCacheMB = 16
	// DefaultHandles is the journal database file handle allowance.
	DefaultHandles = 64
)

func defaultNodeConfig() NodeConfig {
	return NodeConfig{
		Adapter:     DefaultAdapter,
		CacheMB:     DefaultCacheMB,
		KeystorePwd: os.Getenv(keystorePwdEnv),
	}
}
