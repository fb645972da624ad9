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

// Package primitive implements the big-endian wire encodings shared by every
// frame and message in the protocol: the fixed-width integers, length-prefixed
// strings and byte blobs, string maps and inet addresses described in the wire
// codec section of the protocol.
package primitive

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Byte widths of the fixed-size primitives.
const (
	LengthOfByte  = 1
	LengthOfShort = 2
	LengthOfInt   = 4
	LengthOfLong  = 8
)

// ReadByte decodes a single unsigned byte. [byte] is not itself a named wire
// type but every other primitive is built out of it.
func ReadByte(source io.Reader) (uint8, error) {
	var decoded uint8
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [byte]: %w", err)
	}
	return decoded, nil
}

func WriteByte(b uint8, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, b); err != nil {
		return fmt.Errorf("write [byte]: %w", err)
	}
	return nil
}

// ReadShort decodes an unsigned 16-bit big-endian integer ([short]).
func ReadShort(source io.Reader) (uint16, error) {
	var decoded uint16
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [short]: %w", err)
	}
	return decoded, nil
}

func WriteShort(i uint16, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("write [short]: %w", err)
	}
	return nil
}

// ReadSignedShort decodes a signed 16-bit big-endian integer, used for stream ids.
func ReadSignedShort(source io.Reader) (int16, error) {
	var decoded int16
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [signed short]: %w", err)
	}
	return decoded, nil
}

func WriteSignedShort(i int16, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("write [signed short]: %w", err)
	}
	return nil
}

// ReadInt decodes a signed 32-bit big-endian integer ([int]).
func ReadInt(source io.Reader) (int32, error) {
	var decoded int32
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [int]: %w", err)
	}
	return decoded, nil
}

func WriteInt(i int32, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("write [int]: %w", err)
	}
	return nil
}

// ReadUnsignedInt decodes an unsigned 32-bit big-endian integer, used for the
// frame header's body length field.
func ReadUnsignedInt(source io.Reader) (uint32, error) {
	var decoded uint32
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [unsigned int]: %w", err)
	}
	return decoded, nil
}

func WriteUnsignedInt(i uint32, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("write [unsigned int]: %w", err)
	}
	return nil
}

// ReadLong decodes a signed 64-bit big-endian integer ([long]), used for
// microsecond write timestamps and heartbeat generations.
func ReadLong(source io.Reader) (int64, error) {
	var decoded int64
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [long]: %w", err)
	}
	return decoded, nil
}

func WriteLong(l int64, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, l); err != nil {
		return fmt.Errorf("write [long]: %w", err)
	}
	return nil
}

// ReadUnsignedLong decodes an unsigned 64-bit big-endian integer, used for
// HeartbeatState version counters.
func ReadUnsignedLong(source io.Reader) (uint64, error) {
	var decoded uint64
	if err := binary.Read(source, binary.BigEndian, &decoded); err != nil {
		return 0, fmt.Errorf("read [unsigned long]: %w", err)
	}
	return decoded, nil
}

func WriteUnsignedLong(l uint64, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, l); err != nil {
		return fmt.Errorf("write [unsigned long]: %w", err)
	}
	return nil
}
