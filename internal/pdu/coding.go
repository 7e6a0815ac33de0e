package pdu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// DataCoding is the declared coding of a short_message, reduced to what the
// normalizer needs to know.
type DataCoding int

const (
	DataCodingDefault DataCoding = iota
	DataCodingBinary
	DataCodingUCS2
)

// binaryCode is the raw SMPP data_coding value treated as 16-bit text.
const binaryCode = 8

func (c DataCoding) String() string {
	switch c {
	case DataCodingBinary:
		return "BINARY"
	case DataCodingUCS2:
		return "UCS2"
	}
	return "DEFAULT"
}

// Wide reports whether the body must be read as big-endian 16-bit characters.
func (c DataCoding) Wide() bool {
	return c == DataCodingBinary || c == DataCodingUCS2
}

// FromCode maps a raw numeric data_coding value.
func FromCode(code int) DataCoding {
	if code == binaryCode {
		return DataCodingBinary
	}
	return DataCodingDefault
}

// FromScheme maps a scheme name such as "UCS2".
func FromScheme(name string) DataCoding {
	if strings.EqualFold(strings.TrimSpace(name), "UCS2") {
		return DataCodingUCS2
	}
	return DataCodingDefault
}

type schemeObject struct {
	Scheme string `json:"scheme"`
}

// UnmarshalJSON accepts a raw numeric code, a scheme name, or {"scheme": name}.
func (c *DataCoding) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*c = DataCodingDefault
		return nil
	}

	switch b[0] {
	case '"':
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		*c = FromScheme(name)
		return nil
	case '{':
		var obj schemeObject
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*c = FromScheme(obj.Scheme)
		return nil
	}

	var code int
	if err := json.Unmarshal(b, &code); err != nil {
		return fmt.Errorf("data_coding: %w", err)
	}
	*c = FromCode(code)
	return nil
}

func (c DataCoding) MarshalJSON() ([]byte, error) {
	switch c {
	case DataCodingBinary:
		return []byte("8"), nil
	case DataCodingUCS2:
		return []byte(`"UCS2"`), nil
	}
	return []byte("0"), nil
}
