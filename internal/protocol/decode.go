package protocol

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// DecodeArg converts one loosely typed envelope argument (as produced by the
// JSON or CBOR codec) into T. Values that already have type T are returned as
// is; maps and slices are decoded field by field using json tags.
func DecodeArg[T any](v any) (T, error) {
	var out T
	if v == nil {
		return out, nil
	}
	if typed, ok := v.(T); ok {
		return typed, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(v); err != nil {
		return out, fmt.Errorf("decode argument into %T: %w", out, err)
	}
	return out, nil
}

// AsSdkError decodes v into an SdkError when it looks like one (an object with
// an errorCode field).
func AsSdkError(v any) (*SdkError, bool) {
	switch t := v.(type) {
	case *SdkError:
		return t, t != nil
	case SdkError:
		return &t, true
	case map[string]any:
		if _, ok := t["errorCode"]; !ok {
			return nil, false
		}
		sdkErr, err := DecodeArg[SdkError](t)
		if err != nil {
			return nil, false
		}
		return &sdkErr, true
	default:
		return nil, false
	}
}
