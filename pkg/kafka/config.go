package kafka

import (
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack

	// Consumer settings
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	CommitInterval time.Duration
	// StartFromLatest skips the backlog for groups that only care about live
	// events, such as per-instance push fan-out groups.
	StartFromLatest bool
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "pick-floor",
		ClientID:      "pick-floor",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: time.Second,
	}
}

// Topics used by the pick floor
var Topics = struct {
	PickingEvents   string
	InventoryEvents string
}{
	PickingEvents:   "wms.picking.events",
	InventoryEvents: "wms.inventory.events",
}
