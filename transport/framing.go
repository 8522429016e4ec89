// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Length-prefixed message framing over net.Conn, grounded on gnunet-go's
// transport/reader_writer.go (WriteMessage/ReadMessage): same
// "marshal/unmarshal the fixed 4-byte header first, then the rest of
// the frame" shape, cut down to a single context-free
// io.Reader/io.Writer pair since meshbus's proxy (C5) owns its own
// connection lifecycle rather than routing through multiple transport
// channels per peer.

package transport

import (
	"errors"
	"fmt"
	"io"

	"meshbus/message"

	"github.com/bfix/gospel/data"
)

// ErrIncompleteWrite is returned when fewer bytes were written than the
// marshaled frame requires.
var ErrIncompleteWrite = errors.New("incomplete message write")

// WriteFrame marshals msg and writes the length-prefixed frame to wrt.
func WriteFrame(wrt io.Writer, msg message.Message) error {
	buf, err := data.Marshal(msg)
	if err != nil {
		return err
	}
	mh, err := message.GetMsgHeader(buf)
	if err != nil {
		return err
	}
	if len(buf) != int(mh.MsgSize) {
		return fmt.Errorf("frame size mismatch: marshaled %d, header claims %d", len(buf), mh.MsgSize)
	}
	n, err := wrt.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return ErrIncompleteWrite
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from rdr and decodes it
// into the concrete message type named by its header.
func ReadFrame(rdr io.Reader) (message.Message, error) {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(rdr, hdr); err != nil {
		return nil, err
	}
	mh, err := message.GetMsgHeader(hdr)
	if err != nil {
		return nil, err
	}
	if mh.MsgSize < 4 {
		return nil, fmt.Errorf("invalid frame size %d", mh.MsgSize)
	}
	buf := make([]byte, mh.MsgSize)
	copy(buf, hdr)
	if _, err := io.ReadFull(rdr, buf[4:]); err != nil {
		return nil, err
	}
	msg, err := message.NewEmptyMessage(mh.MsgType)
	if err != nil {
		return nil, err
	}
	if err := data.Unmarshal(msg, buf); err != nil {
		return nil, err
	}
	return msg, nil
}
