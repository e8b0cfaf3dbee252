package mesh

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() *Config {
	return &Config{
		Registration: RegistrationConfig{
			Threshold: DefaultOverlapThreshold,
			Rotations: ProperRotationCount,
			Workers:   1,
		},
		MQTT: MQTTConfig{
			PublishPrefix: "beaconmesh",
			ClientID:      "beaconmesh",
		},
		Render: RenderConfig{
			Padding:       100,
			BeaconRadius:  8,
			ScannerRadius: 24,
			Scale:         0.5,
		},
	}
}

// LoadConfig loads the configuration from a YAML file. Fields missing from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	reg := c.Registration
	if reg.Threshold < 1 {
		return fmt.Errorf("registration.threshold must be at least 1, got %d", reg.Threshold)
	}
	if reg.Rotations != ProperRotationCount && reg.Rotations != SignedRotationCount {
		return fmt.Errorf("registration.rotations must be %d or %d, got %d",
			ProperRotationCount, SignedRotationCount, reg.Rotations)
	}
	if reg.Workers < 1 {
		return fmt.Errorf("registration.workers must be at least 1, got %d", reg.Workers)
	}

	r := c.Render
	if r.Padding < 0 {
		return fmt.Errorf("render.padding must not be negative")
	}
	if r.BeaconRadius < 0 || r.ScannerRadius < 0 {
		return fmt.Errorf("render radii must not be negative")
	}
	if r.Scale <= 0 {
		return fmt.Errorf("render.scale must be positive, got %g", r.Scale)
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides MQTT settings from MQTT_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
}
