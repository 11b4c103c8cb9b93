package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame writes a u32 big-endian length prefix followed by payload.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed payload. A zero maxSize disables the limit.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if maxSize > 0 && size > maxSize {
		return nil, fmt.Errorf("%d bytes: %w", size, ErrFrameTooLarge)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteMessage encodes v with codec and writes it as one frame.
func WriteMessage(w io.Writer, codec Codec, v any) error {
	var buf bytes.Buffer
	if err := codec.Encode(&buf, v); err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return WriteFrame(w, buf.Bytes())
}

// ReadMessage reads one frame and decodes it into v.
func ReadMessage(r io.Reader, codec Codec, v any, maxSize uint32) error {
	payload, err := ReadFrame(r, maxSize)
	if err != nil {
		return err
	}
	if err := codec.Decode(bytes.NewReader(payload), v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// AppendServerUpdate encodes a framed tag plus, for World and PlayersTop, the
// unframed payload that follows it. The result is written to a peer as one chunk.
func AppendServerUpdate(dst []byte, codec Codec, tag ServerUpdate, payload any) ([]byte, error) {
	buf := bytes.NewBuffer(dst)

	if err := WriteMessage(buf, codec, tag); err != nil {
		return nil, err
	}
	if payload == nil {
		return buf.Bytes(), nil
	}
	if err := codec.Encode(buf, payload); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", tag, err)
	}
	return buf.Bytes(), nil
}

// ReadServerUpdate reads a framed tag and, where one follows, decodes the
// unframed payload into world or top. r should be buffered.
func ReadServerUpdate(r io.Reader, codec Codec, world *WorldState, top *PlayersTop) (ServerUpdate, error) {
	var tag ServerUpdate
	if err := ReadMessage(r, codec, &tag, 0); err != nil {
		return 0, err
	}

	switch tag {
	case ServerUpdateWorld:
		if err := codec.Decode(r, world); err != nil {
			return tag, fmt.Errorf("decode world: %w", err)
		}
	case ServerUpdatePlayersTop:
		if err := codec.Decode(r, top); err != nil {
			return tag, fmt.Errorf("decode players top: %w", err)
		}
	}
	return tag, nil
}
