// connect使用的JSON编解码器
// RPC消息是普通的Go结构体（没有protobuf生成代码），因此用encoding/json替换connect内置的protojson
package jsoncodec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// Name 编解码器名称，对应Content-Type application/json
const Name = "json"

// Codec 实现connect.Codec
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return Name }

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal 拒绝未知字段，避免拼错的字段被静默忽略；空消息体视为空消息
func (Codec) Unmarshal(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// HandlerOption 服务端选项
func HandlerOption() connect.HandlerOption {
	return connect.WithCodec(Codec{})
}

// ClientOptions 客户端选项：使用JSON编码
func ClientOptions() []connect.ClientOption {
	return []connect.ClientOption{connect.WithCodec(Codec{})}
}
