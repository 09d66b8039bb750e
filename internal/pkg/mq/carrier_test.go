// internal/pkg/mq/carrier_test.go
package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{}

	carrier.Set("traceparent", "a")
	carrier.Set("baggage", "k=v")
	carrier.Set("traceparent", "b")

	require.Equal(t, "b", carrier.Get("traceparent"))
	require.Equal(t, "k=v", carrier.Get("baggage"))
	require.Len(t, carrier, 2)
}

func TestKafkaHeaderCarrierGetMissing(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "traceparent", Value: []byte("a")}}
	require.Empty(t, carrier.Get("no-such-key"))
}

func TestKafkaHeaderCarrierKeys(t *testing.T) {
	carrier := KafkaHeaderCarrier{
		{Key: "traceparent", Value: []byte("a")},
		{Key: "baggage", Value: []byte("k=v")},
	}
	require.ElementsMatch(t, []string{"traceparent", "baggage"}, carrier.Keys())
}

func TestFailureHandlerHeaders(t *testing.T) {
	msg := kafka.Message{Topic: "stock_queue", Partition: 3, Offset: 42}
	headers := dltHeaders(msg, errAlwaysFails{})

	byKey := make(map[string]string, len(headers))
	for _, h := range headers {
		byKey[h.Key] = string(h.Value)
	}
	require.Equal(t, "stock_queue", byKey[HeaderOriginalTopic])
	require.Equal(t, "3", byKey[HeaderOriginalPartition])
	require.Equal(t, "42", byKey[HeaderOriginalOffset])
	require.NotEmpty(t, byKey[HeaderExceptionMessage])
}

type errAlwaysFails struct{}

func (errAlwaysFails) Error() string { return "boom" }
