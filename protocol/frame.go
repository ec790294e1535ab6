package protocol

import "bytes"

// EncodeFrame writes one frame with sequence seq to output. body may be nil,
// which produces an ACK/NAK.
func EncodeFrame(output OutputBuffer, seq uint8, body func(output OutputBuffer)) {
	cursor := output.CurPosition()
	output.Output([]byte{0, seq})
	if body != nil {
		body(output)
	}

	length := len(output.DataSince(cursor)) + MessageTrailerSize
	output.Update(cursor+MessagePositionLen, uint8(length))

	crc := CRC16(output.DataSince(cursor))
	output.Output([]byte{
		uint8(crc >> 8),
		uint8(crc & 0xFF),
		MessageValueSync,
	})
}

// frameScanner splits a byte stream into validated frames, dropping bytes
// up to the next sync byte whenever a frame fails validation.
type frameScanner struct {
	synchronized bool
	onResync     func()
}

// scan calls fn for each complete frame in data and returns the number of
// bytes consumed. A trailing partial frame is left unconsumed.
func (s *frameScanner) scan(data []byte, fn func(msg *Message)) int {
	total := len(data)

	for len(data) > 0 {
		if !s.synchronized {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.synchronized = true
			if s.onResync != nil {
				s.onResync()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			s.synchronized = false
			continue
		}
		if len(data) < msgLen {
			break
		}
		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			s.synchronized = false
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			s.synchronized = false
			continue
		}

		payload := make([]byte, msgLen-MessageLengthMin)
		copy(payload, data[MessageHeaderSize:msgLen-MessageTrailerSize])
		msg := &Message{
			Length:   data[MessagePositionLen],
			Sequence: data[MessagePositionSeq],
			Payload:  payload,
			CRC:      frameCRC,
		}
		data = data[msgLen:]
		fn(msg)
	}

	return total - len(data)
}
