package producer

import (
	"fmt"
	"testing"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/agbruneau/groupload/internal/config"
	"github.com/agbruneau/groupload/internal/logging"
	"github.com/agbruneau/groupload/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaramaConnectionOutcomes(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, newSaramaConfig(testSettings()))
	mp.ExpectInputAndSucceed()
	mp.ExpectInputAndFail(sarama.ErrNotLeaderForPartition)

	c := newSaramaConnection(mp)
	require.NoError(t, c.Send("groups.dev", "GRP_1", []byte(`{}`), map[string]string{HeaderEnvironment: "dev"}))
	require.NoError(t, c.Send("groups.dev", "GRP_2", []byte(`{}`), nil))

	got := map[string]Outcome{}
	for i := 0; i < 2; i++ {
		o := nextOutcome(t, c.Outcomes())
		got[o.Key] = o
	}
	assert.True(t, got["GRP_1"].Success)
	assert.Equal(t, "groups.dev", got["GRP_1"].Topic)
	assert.False(t, got["GRP_2"].Success)
	assert.ErrorIs(t, got["GRP_2"].Err, sarama.ErrNotLeaderForPartition)

	require.NoError(t, c.Close())
	assertClosed(t, c.Outcomes())
	assert.ErrorIs(t, c.Send("groups.dev", "GRP_3", nil, nil), errConnectionClosed)
}

func TestSaramaStreamer(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, newSaramaConfig(testSettings()))
	for i := 0; i < 4; i++ {
		mp.ExpectInputAndSucceed()
	}
	mp.ExpectInputAndFail(sarama.ErrRequestTimedOut)

	s := NewWithConnection(testSettings(), newSaramaConnection(mp), logging.Nop())
	groups := make([]models.GroupRecord, 5)
	for i := range groups {
		groups[i] = sampleGroup(fmt.Sprintf("GRP_%d", i+1))
	}
	keys := s.SubmitBatch(groups)
	require.Len(t, keys, 5)

	require.NoError(t, s.Close())
	assert.Equal(t, Stats{Submitted: 5, Acknowledged: 4, Failed: 1}, s.Stats())
	assert.Equal(t, "GRP_5", s.Failures()[0].Key)
}

func TestNewSaramaConfig(t *testing.T) {
	s := testSettings()
	cfg := newSaramaConfig(s)
	assert.True(t, cfg.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, config.ProducerRetries, cfg.Producer.Retry.Max)
	assert.Equal(t, config.ProducerMaxMessageBytes, cfg.Producer.MaxMessageBytes)
	assert.False(t, cfg.Net.TLS.Enable)
	assert.False(t, cfg.Net.SASL.Enable)
	require.NoError(t, cfg.Validate())

	s.SecurityProtocol = "SASL_SSL"
	s.APIKey, s.APISecret = "user", "pass"
	s.SASLMechanism = config.MechanismSCRAMSHA512
	cfg = newSaramaConfig(s)
	assert.True(t, cfg.Net.TLS.Enable)
	assert.True(t, cfg.Net.SASL.Enable)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), cfg.Net.SASL.Mechanism)
	require.NotNil(t, cfg.Net.SASL.SCRAMClientGeneratorFunc)
	require.NoError(t, cfg.Validate())

	client := cfg.Net.SASL.SCRAMClientGeneratorFunc()
	require.NoError(t, client.Begin("user", "pass", ""))
	first, err := client.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, client.Done())

	s.SASLMechanism = config.MechanismPlain
	cfg = newSaramaConfig(s)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypePlaintext), cfg.Net.SASL.Mechanism)
}
