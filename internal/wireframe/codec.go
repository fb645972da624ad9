// Copyright 2020 DataStax
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package wireframe

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ringkeeper/cqlstore/internal/message"
	"github.com/ringkeeper/cqlstore/internal/primitive"
)

// HeaderLength is the fixed size, in bytes, of every frame header.
const HeaderLength = 1 + 1 + 2 + 1 + 4

// BodyCompressor compresses/decompresses a frame body when the compressed
// header flag is set. Implementations live in internal/compression.
type BodyCompressor interface {
	Compress(uncompressed []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// Codec encodes and decodes Frames, dispatching message bodies through a
// message.Registry and optionally compressing bodies via a BodyCompressor.
type Codec struct {
	messages   *message.Registry
	compressor BodyCompressor
}

func NewCodec(messages *message.Registry) *Codec {
	return &Codec{messages: messages}
}

func NewCodecWithCompression(messages *message.Registry, compressor BodyCompressor) *Codec {
	return &Codec{messages: messages, compressor: compressor}
}

// EncodeFrame writes the header followed by the (possibly compressed) body.
func (c *Codec) EncodeFrame(f *Frame, dest io.Writer) error {
	bodyBuf := &bytes.Buffer{}
	if err := c.encodeBody(f.Header, f.Body, bodyBuf); err != nil {
		return fmt.Errorf("encode frame body: %w", err)
	}
	body := bodyBuf.Bytes()
	if f.Header.Flags.Contains(primitive.HeaderFlagCompressed) {
		if c.compressor == nil {
			return fmt.Errorf("encode frame: compressed flag set but no compressor configured")
		}
		compressed, err := c.compressor.Compress(body)
		if err != nil {
			return fmt.Errorf("compress frame body: %w", err)
		}
		body = compressed
	}
	f.Header.BodyLength = int32(len(body))
	if err := c.EncodeHeader(f.Header, dest); err != nil {
		return fmt.Errorf("encode frame header: %w", err)
	}
	_, err := dest.Write(body)
	return err
}

func (c *Codec) EncodeHeader(h *Header, dest io.Writer) error {
	version := primitive.ProtocolVersionRequest
	if h.IsResponse {
		version = primitive.ProtocolVersionResponse
	}
	if err := primitive.WriteByte(uint8(version), dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(h.Flags), dest); err != nil {
		return err
	}
	if err := primitive.WriteStreamId(h.StreamId, dest); err != nil {
		return err
	}
	if err := primitive.WriteByte(uint8(h.OpCode), dest); err != nil {
		return err
	}
	return primitive.WriteUnsignedInt(uint32(h.BodyLength), dest)
}

func (c *Codec) encodeBody(h *Header, b *Body, dest io.Writer) error {
	if h.Flags.Contains(primitive.HeaderFlagCustomPayload) {
		if err := primitive.WriteBytesMap(b.CustomPayload, dest); err != nil {
			return fmt.Errorf("encode custom payload: %w", err)
		}
	}
	if h.Flags.Contains(primitive.HeaderFlagWarning) {
		if err := primitive.WriteStringList(b.Warnings, dest); err != nil {
			return fmt.Errorf("encode warnings: %w", err)
		}
	}
	return c.messages.Encode(b.Message, dest)
}

// DecodeHeader reads just the 9-byte header, leaving the body unread. The
// session handler calls it once the leading byte has shown the frame is a
// client-facing CQL message rather than an internal server action.
func (c *Codec) DecodeHeader(source io.Reader) (*Header, error) {
	versionByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("decode header version: %w", err)
	}
	version := primitive.ProtocolVersion(versionByte)
	flagsByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("decode header flags: %w", err)
	}
	streamId, err := primitive.ReadStreamId(source)
	if err != nil {
		return nil, fmt.Errorf("decode header stream id: %w", err)
	}
	opCodeByte, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("decode header opcode: %w", err)
	}
	length, err := primitive.ReadUnsignedInt(source)
	if err != nil {
		return nil, fmt.Errorf("decode header body length: %w", err)
	}
	return &Header{
		IsResponse: version.IsResponse(),
		Flags:      primitive.HeaderFlag(flagsByte),
		StreamId:   streamId,
		OpCode:     primitive.OpCode(opCodeByte),
		BodyLength: int32(length),
	}, nil
}

// DecodeRawBody reads exactly header.BodyLength raw bytes, without decoding
// the message inside. Used by the session handler to honor a read deadline on
// the whole frame before committing to a (potentially slow) message decode.
func (c *Codec) DecodeRawBody(header *Header, source io.Reader) ([]byte, error) {
	buf := make([]byte, header.BodyLength)
	if _, err := io.ReadFull(source, buf); err != nil {
		return nil, fmt.Errorf("read raw body (%d bytes): %w", header.BodyLength, err)
	}
	return buf, nil
}

// DecodeBody decodes a previously-read raw body into a Body, decompressing
// it first if the header's compressed flag is set.
func (c *Codec) DecodeBody(header *Header, raw []byte) (*Body, error) {
	if header.Flags.Contains(primitive.HeaderFlagCompressed) {
		if c.compressor == nil {
			return nil, fmt.Errorf("decode body: compressed flag set but no compressor configured")
		}
		decompressed, err := c.compressor.Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("decompress frame body: %w", err)
		}
		raw = decompressed
	}
	source := bytes.NewReader(raw)
	body := &Body{}
	if header.Flags.Contains(primitive.HeaderFlagCustomPayload) {
		payload, err := primitive.ReadBytesMap(source)
		if err != nil {
			return nil, fmt.Errorf("decode custom payload: %w", err)
		}
		body.CustomPayload = payload
	}
	if header.Flags.Contains(primitive.HeaderFlagWarning) {
		warnings, err := primitive.ReadStringList(source)
		if err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
		body.Warnings = warnings
	}
	msg, err := c.messages.Decode(header.OpCode, source)
	if err != nil {
		return nil, fmt.Errorf("decode message body: %w", err)
	}
	body.Message = msg
	return body, nil
}

// DecodeFrame reads an entire frame (header + body) from source.
func (c *Codec) DecodeFrame(source io.Reader) (*Frame, error) {
	header, err := c.DecodeHeader(source)
	if err != nil {
		return nil, err
	}
	raw, err := c.DecodeRawBody(header, source)
	if err != nil {
		return nil, err
	}
	body, err := c.DecodeBody(header, raw)
	if err != nil {
		return nil, err
	}
	return &Frame{Header: header, Body: body}, nil
}
