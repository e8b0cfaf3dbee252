package mesh

import (
	"testing"
	"time"
)

func TestNewMQTTOptions(t *testing.T) {
	opts, err := NewMQTTOptions(MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "beaconmesh-test",
		Username: "user",
		Password: "pass",
	}, nil)
	if err != nil {
		t.Fatalf("NewMQTTOptions() error: %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].Host != "localhost:1883" {
		t.Errorf("Servers = %v", opts.Servers)
	}
	if opts.ClientID != "beaconmesh-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect should be enabled")
	}
	if opts.KeepAlive != int64((60 * time.Second).Seconds()) {
		t.Errorf("KeepAlive = %d", opts.KeepAlive)
	}
	if !opts.CleanSession {
		t.Error("CleanSession should be enabled")
	}
}

func TestNewMQTTOptions_Defaults(t *testing.T) {
	opts, err := NewMQTTOptions(MQTTConfig{Broker: "tcp://broker:1883"}, nil)
	if err != nil {
		t.Fatalf("NewMQTTOptions() error: %v", err)
	}
	if opts.ClientID != "beaconmesh" {
		t.Errorf("ClientID = %q, want beaconmesh", opts.ClientID)
	}
	if opts.Username != "" {
		t.Errorf("Username = %q, want empty", opts.Username)
	}
}

func TestNewMQTTOptions_RequiresBroker(t *testing.T) {
	if _, err := NewMQTTOptions(MQTTConfig{}, nil); err == nil {
		t.Error("expected error without broker")
	}
	if _, err := ConnectMQTT(MQTTConfig{}, nil); err == nil {
		t.Error("ConnectMQTT should fail without broker")
	}
}
