package fixtures

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/nimasrn/submit-logger/internal/pdu"
	"github.com/nimasrn/submit-logger/internal/transport"
)

const (
	RoutedChannel   = "operator-a"
	SourceConnector = "smppc-1"
	SourceAddr      = "1000"
	DestinationAddr = "09120000000"
)

// ConcatHeader is a 6 byte UDH for part n of a message in total parts.
func ConcatHeader(ref, total, n byte) []byte {
	return []byte{0x05, 0x00, 0x03, ref, total, n}
}

// Parts builds total parts of size bytes each, every one
// starting with a concatenation header and padded with fill.
func Parts(total, size int, fill byte) [][]byte {
	parts := make([][]byte, total)
	for i := range parts {
		p := bytes.Repeat([]byte{fill}, size)
		copy(p, ConcatHeader(0x2a, byte(total), byte(i+1)))
		parts[i] = p
	}
	return parts
}

// SubmissionPayload encodes parts as a submit_sm segment chain.
func SubmissionPayload(coding pdu.DataCoding, parts ...[]byte) []byte {
	var first, prev *pdu.Segment
	for _, p := range parts {
		s := &pdu.Segment{
			SourceAddr:      SourceAddr,
			DestinationAddr: DestinationAddr,
			ShortMessage:    p,
			DataCoding:      coding,
		}
		if first == nil {
			first = s
		} else {
			prev.Next = s
		}
		prev = s
	}
	raw, _ := json.Marshal(first)
	return raw
}

func Bill(amount, uid string) string {
	raw, _ := json.Marshal(map[string]string{"total_amount": amount, "user_id": uid})
	return string(raw)
}

type Event struct {
	Topic     string
	MessageID string
	Headers   map[string]string
	Payload   []byte
}

// Metadata is what a gateway publishes next to the payload on the stream.
func (e Event) Metadata() map[string]string {
	return transport.EventMetadata(e.Topic, e.MessageID, e.Headers)
}

func Submission(id string, payload []byte, bill string) Event {
	headers := map[string]string{
		transport.HeaderSourceConnector: SourceConnector,
		transport.HeaderCreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
	}
	if bill != "" {
		headers[transport.HeaderSubmitBill] = bill
	}
	return Event{Topic: "submit.sm." + RoutedChannel, MessageID: id, Headers: headers, Payload: payload}
}

func SubmissionAck(id, status string, createdAt time.Time) Event {
	return Event{
		Topic:     "submit.sm.resp." + RoutedChannel,
		MessageID: id,
		Headers: map[string]string{
			transport.HeaderSourceConnector: SourceConnector,
			transport.HeaderCreatedAt:       createdAt.Format("2006-01-02 15:04:05.999999"),
		},
		Payload: []byte(`{"command_status":"` + status + `"}`),
	}
}

func DeliveryNotification(id, status string) Event {
	return Event{
		Topic:     "dlr_thrower." + RoutedChannel,
		MessageID: id,
		Headers: map[string]string{
			transport.HeaderMessageStatus: status,
			transport.HeaderCreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}
