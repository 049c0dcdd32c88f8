package client

import (
	"encoding/json"
	"testing"
	"time"
)

func TestConfig_UnmarshalJSON_AbsentTogglesEnabled(t *testing.T) {
	var cfg Config
	raw := `{"addr":"ws://example.com/stream"}`
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !cfg.EnableHeartbeat || !cfg.EnableReconnection || !cfg.EnableQueue {
		t.Errorf("toggles = heartbeat:%v reconnection:%v queue:%v, want all true for absent keys",
			cfg.EnableHeartbeat, cfg.EnableReconnection, cfg.EnableQueue)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, want default %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.MaxQueueSize != DefaultMaxQueueSize {
		t.Errorf("MaxQueueSize = %d, want default %d", cfg.MaxQueueSize, DefaultMaxQueueSize)
	}
}

func TestConfig_UnmarshalJSON_ExplicitFalseStaysFalse(t *testing.T) {
	var cfg Config
	raw := `{"addr":"ws://example.com/stream","enable_queue":false,"heartbeat_interval":30000000000}`
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if cfg.EnableQueue {
		t.Error("EnableQueue = true, want false (explicit)")
	}
	if !cfg.EnableHeartbeat {
		t.Error("EnableHeartbeat = false, want true (absent key)")
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 30s", cfg.HeartbeatInterval)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Error("Validate() on empty config = nil, want addr error")
	}
	if err := DefaultConfig("ws://example.com").Validate(); err != nil {
		t.Errorf("Validate() on default config = %v, want nil", err)
	}
}
