package kafka

import "github.com/segmentio/kafka-go"

// mapCarrierHeaders adapts kafka headers to the otel TextMapCarrier interface
// so trace context rides along with every published record.
type mapCarrierHeaders map[string]string

func (c mapCarrierHeaders) Get(key string) string { return c[key] }

func (c mapCarrierHeaders) Set(key, value string) { c[key] = value }

func (c mapCarrierHeaders) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func (c mapCarrierHeaders) ToKafka() []kafka.Header {
	out := make([]kafka.Header, 0, len(c))
	for k, v := range c {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
