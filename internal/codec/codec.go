// Package codec serializes envelopes for the wire. JSON is the default and
// matches what browser hosts expect; CBOR is available for binary transports
// where both ends are under our control.
package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec encodes and decodes envelopes.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// Binary reports whether encoded output must travel as a binary frame.
	Binary() bool
}

const (
	NameJSON = "json"
	NameCBOR = "cbor"
)

// JSON is the default codec.
var JSON Codec = jsonCodec{}

// CBOR uses Core Deterministic Encoding.
var CBOR Codec

func init() {
	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	// Envelope args decode into any; they must come back as string keyed
	// maps so argument decoding treats both codecs the same.
	decMode, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	CBOR = cborCodec{enc: encMode, dec: decMode}
}

// ByName returns the codec registered under name. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameJSON:
		return JSON, nil
	case NameCBOR:
		return CBOR, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return NameJSON }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Binary() bool                       { return false }

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func (cborCodec) Name() string                         { return NameCBOR }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
func (cborCodec) Binary() bool                         { return true }
