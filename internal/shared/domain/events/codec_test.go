package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	sharedDomain "github.com/davicafu/ordersim/internal/shared/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_RoundTrip_AllEventTypes(t *testing.T) {
	codec := JSONCodec{}
	emittedAt := time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)

	for _, eventType := range EventTypes {
		t.Run(string(eventType), func(t *testing.T) {
			original := DomainEvent{
				OrderID:   42,
				Symbol:    "AAPL",
				EventType: eventType,
				Payload:   json.RawMessage(`{"id":42,"symbol":"AAPL","status":"PENDING"}`),
				EmittedAt: emittedAt,
			}

			data, err := codec.Encode(original)
			require.NoError(t, err)

			decoded, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, original, decoded)
		})
	}
}

func TestJSONCodec_Decode_Malformed(t *testing.T) {
	codec := JSONCodec{}

	cases := map[string][]byte{
		"json roto":        []byte(`{"orderId": 1, "eventType": `),
		"sin orderId":      []byte(`{"eventType":"ORDER_CREATED","eventData":{}}`),
		"tipo desconocido": []byte(`{"orderId":1,"eventType":"ORDER_EXPLODED","eventData":{}}`),
	}

	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, sharedDomain.ErrSerialization))
		})
	}
}

func TestJSONCodec_Encode_InvalidPayload(t *testing.T) {
	codec := JSONCodec{}

	_, err := codec.Encode(DomainEvent{
		OrderID:   1,
		EventType: OrderCreated,
		Payload:   json.RawMessage(`{not json`),
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sharedDomain.ErrSerialization)
}

func TestDomainEvent_PartitionKey(t *testing.T) {
	assert.Equal(t, "7", DomainEvent{OrderID: 7}.PartitionKey())
	assert.Equal(t, "test-key-123", DeadLetterRecord{OriginalKey: "test-key-123"}.PartitionKey())
}
