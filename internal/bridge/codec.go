package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec serializes events for external brokers.
type Codec interface {
	Marshal(ev Event) ([]byte, error)
	Unmarshal(data []byte, ev *Event) error
	ContentType() string
}

// NewCodec returns the codec registered under name: "json" or "cbor".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown bridge codec %q", name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Marshal(ev Event) ([]byte, error) { return json.Marshal(ev) }

func (JSONCodec) Unmarshal(data []byte, ev *Event) error { return json.Unmarshal(data, ev) }

func (JSONCodec) ContentType() string { return "application/json" }

// CBORCodec writes canonical CBOR so equal events encode to equal bytes.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBORCodec() (*CBORCodec, error) {
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	enc, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Marshal(ev Event) ([]byte, error) { return c.enc.Marshal(ev) }

func (c *CBORCodec) Unmarshal(data []byte, ev *Event) error { return c.dec.Unmarshal(data, ev) }

func (c *CBORCodec) ContentType() string { return "application/cbor" }
