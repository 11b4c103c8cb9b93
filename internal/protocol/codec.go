package protocol

import (
	"fmt"
	"io"

	"github.com/siohaza/slither/internal/geom"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serialises message payloads. Encode takes message values, Decode takes
// pointers. Decode reads no more than one value from r.
type Codec interface {
	Name() string
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

const (
	CodecBincode = "bincode"
	CodecMsgPack = "msgpack"
)

func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecBincode, "":
		return Bincode{}, nil
	case CodecMsgPack:
		return MsgPack{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Bincode is the default codec, byte compatible with bincode's legacy configuration.
type Bincode struct{}

func (Bincode) Name() string { return CodecBincode }

func (Bincode) Encode(w io.Writer, v any) error {
	dw := NewDataWriter()
	if err := encodeBincode(dw, v); err != nil {
		return err
	}
	_, err := w.Write(dw.Bytes())
	return err
}

func encodeBincode(dw *DataWriter, v any) error {
	switch m := v.(type) {
	case PlayerJoin:
		if m.Color != nil {
			dw.WriteUint8(1)
			writeColor(dw, *m.Color)
		} else {
			dw.WriteUint8(0)
		}
		dw.WriteString(m.Nickname)

	case ClientUpdate:
		dw.WriteUint32(uint32(m.Kind))
		switch m.Kind {
		case ClientUpdateDirection:
			dw.WriteFloat32(m.Direction)
		case ClientUpdateDisconnect:
		case ClientUpdateBoost:
			dw.WriteBool(m.Boost)
		default:
			return fmt.Errorf("client update %d: %w", m.Kind, ErrUnknownTag)
		}

	case SessionStart:
		writePos(dw, m.WorldSize)
		dw.WriteUint32(m.SelfID)

	case ServerUpdate:
		if m > ServerUpdatePlayersTop {
			return fmt.Errorf("server update %d: %w", m, ErrUnknownTag)
		}
		dw.WriteUint32(uint32(m))

	case WorldState:
		dw.WriteLen(len(m.Slithers))
		for _, s := range m.Slithers {
			dw.WriteUint32(s.ID)
			writeColor(dw, s.Color)
			dw.WriteBool(s.Boost)
			dw.WriteString(s.Nickname)
			dw.WriteFloat32(s.Dir)
			dw.WriteFloat32(s.Mass)
			dw.WriteLen(len(s.Cells))
			for _, c := range s.Cells {
				writePos(dw, c)
			}
		}
		dw.WriteLen(len(m.Clots))
		for _, c := range m.Clots {
			writePos(dw, c.Pos)
			dw.WriteFloat32(c.Amount)
			writeColor(dw, c.Color)
		}
		dw.WriteFloat32(m.Width)
		dw.WriteFloat32(m.Height)

	case PlayersTop:
		dw.WriteLen(len(m))
		for _, id := range m {
			dw.WriteUint32(id)
		}

	default:
		return fmt.Errorf("%T: %w", v, ErrUnknownType)
	}
	return nil
}

func (Bincode) Decode(r io.Reader, v any) error {
	dr := NewDataReader(r)

	switch m := v.(type) {
	case *PlayerJoin:
		tag, err := dr.ReadUint8()
		if err != nil {
			return err
		}
		switch tag {
		case 0:
			m.Color = nil
		case 1:
			c, err := readColor(dr)
			if err != nil {
				return err
			}
			m.Color = &c
		default:
			return fmt.Errorf("invalid option tag %d", tag)
		}
		if m.Nickname, err = dr.ReadString(); err != nil {
			return err
		}

	case *ClientUpdate:
		kind, err := dr.ReadUint32()
		if err != nil {
			return err
		}
		*m = ClientUpdate{Kind: ClientUpdateKind(kind)}
		switch m.Kind {
		case ClientUpdateDirection:
			m.Direction, err = dr.ReadFloat32()
		case ClientUpdateDisconnect:
		case ClientUpdateBoost:
			m.Boost, err = dr.ReadBool()
		default:
			return fmt.Errorf("client update %d: %w", kind, ErrUnknownTag)
		}
		if err != nil {
			return err
		}

	case *SessionStart:
		size, err := readPos(dr)
		if err != nil {
			return err
		}
		m.WorldSize = size
		if m.SelfID, err = dr.ReadUint32(); err != nil {
			return err
		}

	case *ServerUpdate:
		tag, err := dr.ReadUint32()
		if err != nil {
			return err
		}
		if ServerUpdate(tag) > ServerUpdatePlayersTop {
			return fmt.Errorf("server update %d: %w", tag, ErrUnknownTag)
		}
		*m = ServerUpdate(tag)

	case *WorldState:
		return decodeWorldState(dr, m)

	case *PlayersTop:
		n, err := dr.ReadLen()
		if err != nil {
			return err
		}
		top := make(PlayersTop, n)
		for i := range top {
			if top[i], err = dr.ReadUint32(); err != nil {
				return err
			}
		}
		*m = top

	default:
		return fmt.Errorf("%T: %w", v, ErrUnknownType)
	}
	return nil
}

func decodeWorldState(dr *DataReader, m *WorldState) error {
	n, err := dr.ReadLen()
	if err != nil {
		return err
	}
	m.Slithers = make([]SlitherState, n)
	for i := range m.Slithers {
		s := &m.Slithers[i]
		if s.ID, err = dr.ReadUint32(); err != nil {
			return err
		}
		if s.Color, err = readColor(dr); err != nil {
			return err
		}
		if s.Boost, err = dr.ReadBool(); err != nil {
			return err
		}
		if s.Nickname, err = dr.ReadString(); err != nil {
			return err
		}
		if s.Dir, err = dr.ReadFloat32(); err != nil {
			return err
		}
		if s.Mass, err = dr.ReadFloat32(); err != nil {
			return err
		}
		cells, err := dr.ReadLen()
		if err != nil {
			return err
		}
		s.Cells = make([]geom.Pos2, cells)
		for j := range s.Cells {
			if s.Cells[j], err = readPos(dr); err != nil {
				return err
			}
		}
	}

	if n, err = dr.ReadLen(); err != nil {
		return err
	}
	m.Clots = make([]ClotState, n)
	for i := range m.Clots {
		c := &m.Clots[i]
		if c.Pos, err = readPos(dr); err != nil {
			return err
		}
		if c.Amount, err = dr.ReadFloat32(); err != nil {
			return err
		}
		if c.Color, err = readColor(dr); err != nil {
			return err
		}
	}

	if m.Width, err = dr.ReadFloat32(); err != nil {
		return err
	}
	m.Height, err = dr.ReadFloat32()
	return err
}

func writePos(dw *DataWriter, p geom.Pos2) {
	dw.WriteFloat32(p.X)
	dw.WriteFloat32(p.Y)
}

func readPos(dr *DataReader) (geom.Pos2, error) {
	x, err := dr.ReadFloat32()
	if err != nil {
		return geom.Pos2{}, err
	}
	y, err := dr.ReadFloat32()
	if err != nil {
		return geom.Pos2{}, err
	}
	return geom.Pos2{X: x, Y: y}, nil
}

func writeColor(dw *DataWriter, c geom.Color) {
	dw.WriteUint8(c.R)
	dw.WriteUint8(c.G)
	dw.WriteUint8(c.B)
	dw.WriteUint8(c.A)
}

func readColor(dr *DataReader) (geom.Color, error) {
	b, err := dr.fill(4)
	if err != nil {
		return geom.Color{}, err
	}
	return geom.Color{R: b[0], G: b[1], B: b[2], A: b[3]}, nil
}

// MsgPack encodes messages as MessagePack maps keyed by field name.
type MsgPack struct{}

func (MsgPack) Name() string { return CodecMsgPack }

func (MsgPack) Encode(w io.Writer, v any) error {
	return msgpack.NewEncoder(w).Encode(v)
}

// Decode reads one value. When r is not an io.ByteScanner the decoder buffers,
// so unframed stream reads need a bufio.Reader underneath.
func (MsgPack) Decode(r io.Reader, v any) error {
	return msgpack.NewDecoder(r).Decode(v)
}
