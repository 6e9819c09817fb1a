package api

import (
	"fmt"

	"github.com/bytedance/sonic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype messages travel under.
const CodecName = "json"

// codec encodes messages with sonic using encoding/json compatible
// settings.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	return data, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if err := sonic.ConfigStd.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(codec{})
}

// CallOptions returns the call options every client call needs.
func CallOptions() []grpc.CallOption {
	return []grpc.CallOption{grpc.CallContentSubtype(CodecName)}
}
