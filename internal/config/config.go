package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning is the runtime knob file (wall.yaml). Everything has a default so
// the file is optional.
type Tuning struct {
	PollIntervalSec     int `yaml:"poll_interval_sec"`
	ReconnectBackoffSec int `yaml:"reconnect_backoff_sec"`
	HubQueueSize        int `yaml:"hub_queue_size"`
	MaxAuthorLen        int `yaml:"max_author_len"`
	MaxTextLen          int `yaml:"max_text_len"`

	DisableEventLog bool `yaml:"disable_event_log"`
}

func Defaults() Tuning {
	return Tuning{
		PollIntervalSec:     15,
		ReconnectBackoffSec: 2,
		HubQueueSize:        32,
		MaxAuthorLen:        80,
		MaxTextLen:          500,
	}
}

// Load reads path, filling unset fields from Defaults. A missing file is not
// an error: it returns Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("wall.yaml: %w", err)
	}
	if t.PollIntervalSec <= 0 {
		t.PollIntervalSec = Defaults().PollIntervalSec
	}
	if t.ReconnectBackoffSec <= 0 {
		t.ReconnectBackoffSec = Defaults().ReconnectBackoffSec
	}
	if t.HubQueueSize <= 0 {
		t.HubQueueSize = Defaults().HubQueueSize
	}
	return t, nil
}

func (t Tuning) PollInterval() time.Duration     { return time.Duration(t.PollIntervalSec) * time.Second }
func (t Tuning) ReconnectBackoff() time.Duration { return time.Duration(t.ReconnectBackoffSec) * time.Second }
