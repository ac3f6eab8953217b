package topics

import (
	"errors"
	"testing"
)

func TestValidatePerm(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"read write", "6", false},
		{"read only", "4", false},
		{"write only", "2", false},
		{"none", "0", false},
		{"inherit bit", "1", true},
		{"negative", "-4", true},
		{"non-numeric", "rw", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(ConfigPerm, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig(perm, %s) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageType(t *testing.T) {
	for _, v := range []string{MessageTypeNormal, MessageTypeFIFO, MessageTypeDelay, MessageTypeTransaction} {
		if err := ValidateConfig(ConfigMessageType, v); err != nil {
			t.Errorf("ValidateConfig(message.type, %s) = %v", v, err)
		}
	}
	if err := ValidateConfig(ConfigMessageType, "normal"); err == nil {
		t.Error("expected lowercase message type to be rejected")
	}
}

func TestValidateRetentionMs(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"604800000", false},
		{"0", false},
		{"-1", false},
		{"-2", true},
		{"abc", true},
	}
	for _, tt := range tests {
		err := ValidateConfig(ConfigRetentionMs, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateConfig(retention.ms, %s) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestValidateUnknownConfig(t *testing.T) {
	err := ValidateConfig("cleanup.policy", "compact")
	if !errors.Is(err, ErrInvalidConfigKey) {
		t.Fatalf("expected ErrInvalidConfigKey, got %v", err)
	}
	var cve *ConfigValidationError
	if !errors.As(err, &cve) || cve.Key != "cleanup.policy" {
		t.Errorf("expected ConfigValidationError for cleanup.policy, got %v", err)
	}
}

func TestValidateConfigs(t *testing.T) {
	if err := ValidateConfigs(map[string]string{ConfigPerm: "6", ConfigMessageType: "FIFO"}); err != nil {
		t.Errorf("valid configs rejected: %v", err)
	}
	if err := ValidateConfigs(map[string]string{ConfigPerm: "9"}); err == nil {
		t.Error("expected invalid perm to be rejected")
	}
	if err := ValidateConfigs(nil); err != nil {
		t.Errorf("nil configs: %v", err)
	}
}

func TestMergeWithDefaults(t *testing.T) {
	merged := MergeWithDefaults(map[string]string{ConfigPerm: "4"})
	if merged[ConfigPerm] != "4" {
		t.Errorf("perm = %q, want 4", merged[ConfigPerm])
	}
	if merged[ConfigMessageType] != DefaultMessageType {
		t.Errorf("message.type = %q, want default", merged[ConfigMessageType])
	}
	if len(SupportedConfigs()) != len(DefaultConfigs()) {
		t.Error("every supported config should have a default")
	}
}

func TestReadable(t *testing.T) {
	if !Readable(nil) {
		t.Error("default perm should be readable")
	}
	if Readable(map[string]string{ConfigPerm: "2"}) {
		t.Error("write-only topic should not be readable")
	}
	if !Readable(map[string]string{ConfigPerm: "junk"}) {
		t.Error("malformed perm should fall back to default")
	}
}
