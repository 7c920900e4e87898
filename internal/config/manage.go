package config

import "fmt"

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll lists every key with its effective value. Secret values are
// reported only as set or unset.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret()}
		switch v := s.value(cfg); {
		case !s.secret():
			info.Value = v
		case v == "":
			info.Value = "(unset)"
		default:
			info.Value = "(set)"
		}
		out = append(out, info)
	}
	return out
}

// SetKey persists key. Secrets go to the platform secret store, everything
// else to the platform config backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), NewKeychain(), key, value)
}

// UnsetKey removes key from the config backend so its default applies again.
func UnsetKey(key string) error {
	return unsetKeyWith(newPlatformBackend(), key)
}

func setKeyWith(b ConfigBackend, kc Keychain, key, value string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret() {
		return kc.Set(keychainService, s.account, value)
	}
	return s.store(b, value)
}

func unsetKeyWith(b ConfigBackend, key string) error {
	s, ok := lookupSpec(key)
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if s.secret() {
		return fmt.Errorf("%s is a secret; overwrite it with config set", key)
	}
	return b.Delete(key)
}

// ValidKeys returns the settable key names in display order.
func ValidKeys() []string {
	keys := make([]string, len(specs))
	for i, s := range specs {
		keys[i] = s.key
	}
	return keys
}
