package fieldbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotTopic(t *testing.T) {
	assert.Equal(t, "fieldbus/pump1", snapshotTopic(DefaultMQTTTopicPrefix, "pump1"))
	assert.Equal(t, "plant/floor2/pump1", snapshotTopic("plant/floor2", "pump1"))
}
