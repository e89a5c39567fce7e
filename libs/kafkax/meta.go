// Package kafkax holds the Kafka conventions shared by producers and consumers:
// metadata headers, trace propagation and broker health.
package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventMeta identifies a message for idempotent consumption.
type EventMeta struct {
	EventID   string
	EventType string
}

// ExtractEventMeta falls back to the message key and topic when headers are missing.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	id := HeaderValue(msg.Headers, HeaderEventID)
	if id == "" {
		id = string(msg.Key)
	}
	typ := HeaderValue(msg.Headers, HeaderEventType)
	if typ == "" {
		typ = msg.Topic
	}
	return EventMeta{EventID: id, EventType: typ}
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
