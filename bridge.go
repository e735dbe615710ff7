package fieldbus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// DefaultMQTTTopicPrefix is used when the configuration leaves the
// prefix empty; snapshots land on <prefix>/<device>.
const DefaultMQTTTopicPrefix = "fieldbus"

const _mqttPublishTimeout = 5 * time.Second

// MQTTBridge mirrors poll snapshots to an MQTT broker so dashboards and
// historians outside the plant network segment can follow along.
type MQTTBridge struct {
	client      paho.Client
	topicPrefix string
	logger      *zap.SugaredLogger
}

// NewMQTTBridge connects to the broker at brokerURL (tcp://host:1883)
// and returns a bridge publishing under topicPrefix.
func NewMQTTBridge(brokerURL, topicPrefix string, logger *zap.SugaredLogger) (*MQTTBridge, error) {
	if topicPrefix == "" {
		topicPrefix = DefaultMQTTTopicPrefix
	}

	if logger == nil {
		logger = zap.NewExample().Sugar()
	}

	host, _ := os.Hostname()

	opts := paho.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(fmt.Sprintf("fieldbus-%s-%d", host, os.Getpid())).
		SetAutoReconnect(true)

	client := paho.NewClient(opts)

	token := client.Connect()
	token.Wait()

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker %s: %v", brokerURL, err)
	}

	return &MQTTBridge{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger.With("broker", brokerURL),
	}, nil
}

// PublishSnapshot implements SnapshotSink.
func (b *MQTTBridge) PublishSnapshot(snap Snapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %v", err)
	}

	token := b.client.Publish(snapshotTopic(b.topicPrefix, snap.Device), 0, false, body)

	if !token.WaitTimeout(_mqttPublishTimeout) {
		return fmt.Errorf("publish snapshot for %s: timed out", snap.Device)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish snapshot for %s: %v", snap.Device, err)
	}

	return nil
}

// Close disconnects from the broker after flushing outbound messages.
func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}

func snapshotTopic(prefix, device string) string {
	return prefix + "/" + device
}
