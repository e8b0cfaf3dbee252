package mesh

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// publishTimeout bounds each publish acknowledgement.
const publishTimeout = 2 * time.Second

// Publisher publishes registration results to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	logger        *zap.Logger
}

// NewPublisher creates a result publisher. An empty prefix falls back to
// "beaconmesh"; a nil logger disables logging.
func NewPublisher(client mqtt.Client, prefix string, logger *zap.Logger) *Publisher {
	if prefix == "" {
		prefix = "beaconmesh"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget
		retain:        true, // late subscribers get the last result
		logger:        logger,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishResult publishes every scanner placement to <prefix>/scanners/<id>
// and the answers to <prefix>/summary.
func (p *Publisher) PublishResult(res *Result) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	if res == nil {
		return fmt.Errorf("result is nil")
	}

	for _, pl := range res.Placements {
		topic := fmt.Sprintf("%s/scanners/%d", p.publishPrefix, pl.Scanner)
		if err := p.publishJSON(topic, pl); err != nil {
			return err
		}
	}

	summary := Summarize(res)
	summary.Timestamp = time.Now().Unix()
	if err := p.publishJSON(p.publishPrefix+"/summary", summary); err != nil {
		return err
	}

	p.logger.Info("published registration result",
		zap.String("prefix", p.publishPrefix),
		zap.Int("scanners", len(res.Placements)),
		zap.Int("beacons", summary.BeaconCount))
	return nil
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	p.logger.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}
