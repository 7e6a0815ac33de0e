package pdu

import (
	"encoding/json"
	"errors"
)

// ConcatHeaderLen is the size of the concatenation UDH carried by every part
// of a multi-part message.
const ConcatHeaderLen = 6

var ErrEmptyPayload = errors.New("empty submit_sm payload")

// Segment is one submit_sm PDU. Next is nil on the final part.
type Segment struct {
	SourceAddr      string     `json:"source_addr"`
	DestinationAddr string     `json:"destination_addr"`
	ShortMessage    []byte     `json:"short_message"`
	DataCoding      DataCoding `json:"data_coding"`
	Next            *Segment   `json:"next_segment,omitempty"`
}

// Decode parses a Submission payload into its segment chain.
func Decode(payload []byte) (*Segment, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	var s Segment
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Reassemble walks the chain starting at first and returns the concatenated
// body, the number of parts and the last part. A single part is returned
// untouched; once a continuation is seen the header is stripped from every part.
func Reassemble(first *Segment) (body []byte, count int, last *Segment) {
	count = 1
	body = append(make([]byte, 0, len(first.ShortMessage)), first.ShortMessage...)
	last = first

	for last.Next != nil {
		if count == 1 {
			body = stripHeader(body)
		}
		last = last.Next
		count++
		body = append(body, stripHeader(last.ShortMessage)...)
	}

	return body, count, last
}

func stripHeader(b []byte) []byte {
	if len(b) <= ConcatHeaderLen {
		return b[:0]
	}
	return b[ConcatHeaderLen:]
}
