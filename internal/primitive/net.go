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
	"net"
)

// ReadInetAddr decodes an [inetaddr]: a 1-byte length (4 or 16) followed by
// that many address bytes.
func ReadInetAddr(source io.Reader) (net.IP, error) {
	length, err := ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("read [inetaddr] length: %w", err)
	}
	switch length {
	case net.IPv4len:
		decoded := make([]byte, net.IPv4len)
		if _, err := io.ReadFull(source, decoded); err != nil {
			return nil, fmt.Errorf("read [inetaddr] IPv4 content: %w", err)
		}
		return net.IPv4(decoded[0], decoded[1], decoded[2], decoded[3]), nil
	case net.IPv6len:
		decoded := make([]byte, net.IPv6len)
		if _, err := io.ReadFull(source, decoded); err != nil {
			return nil, fmt.Errorf("read [inetaddr] IPv6 content: %w", err)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("invalid [inetaddr] length: %d", length)
	}
}

func WriteInetAddr(addr net.IP, dest io.Writer) error {
	if addr == nil {
		return errors.New("cannot write nil [inetaddr]")
	}
	if v4 := addr.To4(); v4 != nil {
		if err := WriteByte(net.IPv4len, dest); err != nil {
			return err
		}
		_, err := dest.Write(v4)
		return err
	}
	if err := WriteByte(net.IPv6len, dest); err != nil {
		return err
	}
	_, err := dest.Write(addr.To16())
	return err
}

func LengthOfInetAddr(addr net.IP) (int, error) {
	if addr == nil {
		return -1, errors.New("cannot compute length of nil [inetaddr]")
	}
	if addr.To4() != nil {
		return LengthOfByte + net.IPv4len, nil
	}
	return LengthOfByte + net.IPv6len, nil
}

// Inet pairs an [inetaddr] with a port number, used to advertise a node's
// client or private endpoint across the wire.
type Inet struct {
	Addr net.IP
	Port int32
}

func (i Inet) String() string {
	return fmt.Sprintf("%v:%v", i.Addr, i.Port)
}

func ReadInet(source io.Reader) (*Inet, error) {
	addr, err := ReadInetAddr(source)
	if err != nil {
		return nil, fmt.Errorf("read [inet] address: %w", err)
	}
	port, err := ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("read [inet] port: %w", err)
	}
	return &Inet{Addr: addr, Port: port}, nil
}

func WriteInet(inet *Inet, dest io.Writer) error {
	if inet == nil {
		return errors.New("cannot write nil [inet]")
	}
	if err := WriteInetAddr(inet.Addr, dest); err != nil {
		return fmt.Errorf("write [inet] address: %w", err)
	}
	return WriteInt(inet.Port, dest)
}
