package producer

import (
	"errors"
	"testing"

	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/generator"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/pkg/models"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaGoCompletion(t *testing.T) {
	c := newKafkaGoConnection(4)

	c.complete([]kafkago.Message{
		{Topic: "groups.dev", Key: []byte("GRP_1"), Partition: 2, Offset: 7},
		{Topic: "groups.dev", Key: []byte("GRP_2"), Partition: 0, Offset: 3},
	}, nil)
	c.complete([]kafkago.Message{{Topic: "groups.dev", Key: []byte("GRP_3")}}, errors.New("leader not available"))

	first := nextOutcome(t, c.Outcomes())
	assert.Equal(t, Outcome{Key: "GRP_1", Success: true, Topic: "groups.dev", Partition: 2, Offset: 7}, first)
	assert.Equal(t, "GRP_2", nextOutcome(t, c.Outcomes()).Key)

	failed := nextOutcome(t, c.Outcomes())
	assert.False(t, failed.Success)
	assert.Equal(t, "GRP_3", failed.Key)
	assert.EqualError(t, failed.Err, "leader not available")

	require.NoError(t, c.Close())
	assertClosed(t, c.Outcomes())
	assert.ErrorIs(t, c.Send("groups.dev", "GRP_4", nil, nil), errConnectionClosed)
	assert.NoError(t, c.Close())
}

func TestKafkaGoMechanism(t *testing.T) {
	s := testSettings()
	s.APIKey = "user"
	s.APISecret = "pass"

	s.SASLMechanism = config.MechanismPlain
	m, err := kafkaGoMechanism(s)
	require.NoError(t, err)
	assert.Equal(t, plain.Mechanism{Username: "user", Password: "pass"}, m)

	for _, mech := range []string{config.MechanismSCRAMSHA256, config.MechanismSCRAMSHA512} {
		s.SASLMechanism = mech
		m, err = kafkaGoMechanism(s)
		require.NoError(t, err, mech)
		assert.Equal(t, mech, m.Name())
	}

	s.SASLMechanism = "GSSAPI"
	_, err = kafkaGoMechanism(s)
	assert.Error(t, err)
}

func TestKafkaGoTransport(t *testing.T) {
	s := testSettings()
	transport, err := kafkaGoTransport(s)
	require.NoError(t, err)
	assert.Nil(t, transport.TLS)
	assert.Nil(t, transport.SASL)

	s.SecurityProtocol = "SASL_SSL"
	s.SASLMechanism = config.MechanismPlain
	s.APIKey, s.APISecret = "user", "pass"
	transport, err = kafkaGoTransport(s)
	require.NoError(t, err)
	assert.NotNil(t, transport.TLS)
	assert.NotNil(t, transport.SASL)
}

func TestDialKafkaGo(t *testing.T) {
	s := testSettings()
	s.Driver = config.DriverKafkaGo

	conn, err := Dial(s, logging.Nop())
	require.NoError(t, err)
	require.IsType(t, &kafkaGoConnection{}, conn)

	require.NoError(t, conn.Close())
	assertClosed(t, conn.Outcomes())
}

func TestDialKafkaGoAcceptsLargeRecords(t *testing.T) {
	s := testSettings()
	s.Driver = config.DriverKafkaGo

	conn, err := Dial(s, logging.Nop())
	require.NoError(t, err)
	defer conn.Close()

	rec, err := generator.New(generator.WithSeed(7)).CorporateGroup("Big Corp", 60)
	require.NoError(t, err)
	payload, err := models.NewGroupLoadMessage(config.EnvDev, rec).Marshal()
	require.NoError(t, err)
	require.Greater(t, len(payload), config.ProducerBatchSize)

	writer := conn.(*kafkaGoConnection).writer
	assert.Equal(t, int64(config.ProducerMaxMessageBytes), writer.BatchBytes)
	assert.Less(t, int64(len(rec.GroupID)+len(payload)), writer.BatchBytes)
}

func TestDialUnknownDriver(t *testing.T) {
	s := testSettings()
	s.Driver = "carrier-pigeon"

	_, err := Dial(s, logging.Nop())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "carrier-pigeon", connErr.Driver)
	assert.Contains(t, err.Error(), "localhost:9092")
}
