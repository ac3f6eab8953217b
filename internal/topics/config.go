package topics

import (
	"errors"
	"fmt"
	"strconv"
)

// Supported config keys.
const (
	ConfigPerm        = "perm"
	ConfigMessageType = "message.type"
	ConfigRetentionMs = "retention.ms"
)

// Permission bits carried by the perm config.
const (
	PermWrite = 1 << 1
	PermRead  = 1 << 2
)

// Message types.
const (
	MessageTypeNormal      = "NORMAL"
	MessageTypeFIFO        = "FIFO"
	MessageTypeDelay       = "DELAY"
	MessageTypeTransaction = "TRANSACTION"
)

// Default config values.
const (
	DefaultPerm        = PermRead | PermWrite
	DefaultMessageType = MessageTypeNormal
	DefaultRetentionMs = 259200000 // 72h
)

// ErrInvalidConfigKey is returned for a key outside SupportedConfigs.
var ErrInvalidConfigKey = errors.New("topics: invalid config key")

// ConfigValidationError describes one rejected config entry.
type ConfigValidationError struct {
	Key     string
	Value   string
	Message string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("topics: config %q=%q: %s", e.Key, e.Value, e.Message)
}

func (e *ConfigValidationError) Unwrap() error {
	if e.Message == "unknown config key" {
		return ErrInvalidConfigKey
	}
	return nil
}

// SupportedConfigs returns the config keys a topic may carry.
func SupportedConfigs() []string {
	return []string{ConfigPerm, ConfigMessageType, ConfigRetentionMs}
}

// ValidateConfig validates a single config key-value pair.
func ValidateConfig(key, value string) error {
	switch key {
	case ConfigPerm:
		v, err := strconv.Atoi(value)
		if err != nil || v < 0 || v&^(PermRead|PermWrite) != 0 {
			return &ConfigValidationError{Key: key, Value: value, Message: "must be a combination of read (4) and write (2)"}
		}
		return nil
	case ConfigMessageType:
		switch value {
		case MessageTypeNormal, MessageTypeFIFO, MessageTypeDelay, MessageTypeTransaction:
			return nil
		}
		return &ConfigValidationError{Key: key, Value: value, Message: "must be one of NORMAL, FIFO, DELAY, TRANSACTION"}
	case ConfigRetentionMs:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return &ConfigValidationError{Key: key, Value: value, Message: "must be a valid integer"}
		}
		if v < -1 {
			return &ConfigValidationError{Key: key, Value: value, Message: "must be >= -1 (use -1 for unlimited)"}
		}
		return nil
	default:
		return &ConfigValidationError{Key: key, Value: value, Message: "unknown config key"}
	}
}

// ValidateConfigs returns the first invalid entry, if any.
func ValidateConfigs(configs map[string]string) error {
	for key, value := range configs {
		if err := ValidateConfig(key, value); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfigs returns the default topic configuration.
func DefaultConfigs() map[string]string {
	return map[string]string{
		ConfigPerm:        strconv.Itoa(DefaultPerm),
		ConfigMessageType: DefaultMessageType,
		ConfigRetentionMs: strconv.FormatInt(DefaultRetentionMs, 10),
	}
}

// MergeWithDefaults overlays configs on the defaults.
func MergeWithDefaults(configs map[string]string) map[string]string {
	result := DefaultConfigs()
	for key, value := range configs {
		result[key] = value
	}
	return result
}

// Readable reports whether the perm config allows reads. A missing or
// malformed perm falls back to the default.
func Readable(configs map[string]string) bool {
	perm := DefaultPerm
	if value, ok := configs[ConfigPerm]; ok {
		if v, err := strconv.Atoi(value); err == nil {
			perm = v
		}
	}
	return perm&PermRead != 0
}
