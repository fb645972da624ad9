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

package primitive

import (
	"errors"
	"fmt"
	"io"
)

// ReadString decodes a [string]: a 2-byte length followed by UTF-8 bytes.
func ReadString(source io.Reader) (string, error) {
	length, err := ReadShort(source)
	if err != nil {
		return "", fmt.Errorf("read [string] length: %w", err)
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return "", fmt.Errorf("read [string] content: %w", err)
	}
	return string(decoded), nil
}

func WriteString(s string, dest io.Writer) error {
	if err := WriteShort(uint16(len(s)), dest); err != nil {
		return fmt.Errorf("write [string] length: %w", err)
	}
	if _, err := dest.Write([]byte(s)); err != nil {
		return fmt.Errorf("write [string] content: %w", err)
	}
	return nil
}

func LengthOfString(s string) int {
	return LengthOfShort + len(s)
}

// ReadLongString decodes a [long string]: a 4-byte length followed by UTF-8 bytes.
// Used for the QUERY body's CQL text, which may exceed 64KB.
func ReadLongString(source io.Reader) (string, error) {
	length, err := ReadInt(source)
	if err != nil {
		return "", fmt.Errorf("read [long string] length: %w", err)
	}
	if length < 0 {
		return "", errors.New("invalid [long string] negative length")
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return "", fmt.Errorf("read [long string] content: %w", err)
	}
	return string(decoded), nil
}

func WriteLongString(s string, dest io.Writer) error {
	if err := WriteInt(int32(len(s)), dest); err != nil {
		return fmt.Errorf("write [long string] length: %w", err)
	}
	if _, err := dest.Write([]byte(s)); err != nil {
		return fmt.Errorf("write [long string] content: %w", err)
	}
	return nil
}

func LengthOfLongString(s string) int {
	return LengthOfInt + len(s)
}

// ReadBytes decodes a [bytes]: a 4-byte length (negative means null) followed
// by that many raw bytes.
func ReadBytes(source io.Reader) ([]byte, error) {
	length, err := ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("read [bytes] length: %w", err)
	}
	if length < 0 {
		return nil, nil
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return nil, fmt.Errorf("read [bytes] content: %w", err)
	}
	return decoded, nil
}

func WriteBytes(b []byte, dest io.Writer) error {
	if b == nil {
		return WriteInt(-1, dest)
	}
	if err := WriteInt(int32(len(b)), dest); err != nil {
		return fmt.Errorf("write [bytes] length: %w", err)
	}
	if _, err := dest.Write(b); err != nil {
		return fmt.Errorf("write [bytes] content: %w", err)
	}
	return nil
}

func LengthOfBytes(b []byte) int {
	if b == nil {
		return LengthOfInt
	}
	return LengthOfInt + len(b)
}

// ReadStringMap decodes a [string map]: a 2-byte count followed by that many
// (key [string], value [string]) pairs, used by STARTUP options.
func ReadStringMap(source io.Reader) (map[string]string, error) {
	count, err := ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("read [string map] length: %w", err)
	}
	decoded := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		key, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("read [string map] entry %d key: %w", i, err)
		}
		value, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("read [string map] entry %d value: %w", i, err)
		}
		decoded[key] = value
	}
	return decoded, nil
}

func WriteStringMap(m map[string]string, dest io.Writer) error {
	if err := WriteShort(uint16(len(m)), dest); err != nil {
		return fmt.Errorf("write [string map] length: %w", err)
	}
	for key, value := range m {
		if err := WriteString(key, dest); err != nil {
			return fmt.Errorf("write [string map] entry %q key: %w", key, err)
		}
		if err := WriteString(value, dest); err != nil {
			return fmt.Errorf("write [string map] entry %q value: %w", key, err)
		}
	}
	return nil
}

func LengthOfStringMap(m map[string]string) int {
	length := LengthOfShort
	for key, value := range m {
		length += LengthOfString(key) + LengthOfString(value)
	}
	return length
}

// ReadBytesMap decodes a [bytes map], used to carry a frame's custom payload.
func ReadBytesMap(source io.Reader) (map[string][]byte, error) {
	count, err := ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("read [bytes map] length: %w", err)
	}
	decoded := make(map[string][]byte, count)
	for i := uint16(0); i < count; i++ {
		key, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("read [bytes map] entry %d key: %w", i, err)
		}
		value, err := ReadBytes(source)
		if err != nil {
			return nil, fmt.Errorf("read [bytes map] entry %d value: %w", i, err)
		}
		decoded[key] = value
	}
	return decoded, nil
}

func WriteBytesMap(m map[string][]byte, dest io.Writer) error {
	if err := WriteShort(uint16(len(m)), dest); err != nil {
		return fmt.Errorf("write [bytes map] length: %w", err)
	}
	for key, value := range m {
		if err := WriteString(key, dest); err != nil {
			return fmt.Errorf("write [bytes map] entry %q key: %w", key, err)
		}
		if err := WriteBytes(value, dest); err != nil {
			return fmt.Errorf("write [bytes map] entry %q value: %w", key, err)
		}
	}
	return nil
}

// ReadStringList decodes a [string list]: a 2-byte count followed by that
// many [string] entries. Used by SUPPORTED's option value lists.
func ReadStringList(source io.Reader) ([]string, error) {
	count, err := ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("read [string list] length: %w", err)
	}
	decoded := make([]string, count)
	for i := range decoded {
		s, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("read [string list] entry %d: %w", i, err)
		}
		decoded[i] = s
	}
	return decoded, nil
}

func WriteStringList(list []string, dest io.Writer) error {
	if err := WriteShort(uint16(len(list)), dest); err != nil {
		return fmt.Errorf("write [string list] length: %w", err)
	}
	for i, s := range list {
		if err := WriteString(s, dest); err != nil {
			return fmt.Errorf("write [string list] entry %d: %w", i, err)
		}
	}
	return nil
}

func LengthOfStringList(list []string) int {
	length := LengthOfShort
	for _, s := range list {
		length += LengthOfString(s)
	}
	return length
}
