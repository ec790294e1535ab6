// Package protocol implements the framed VLQ message protocol spoken
// between adcshare firmware and its host tool. Framing follows Klipper:
//
//	[len][seq][payload...][crc16 hi][crc16 lo][0x7E]
package protocol

// Version is the firmware/host protocol version string.
const Version = "adcshare-0.1.0"

// Frame layout
const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E

	// Sequence byte: high nibble is always MessageDest, low nibble counts.
	MessageDest    = 0x10
	MessageSeqMask = 0x0F

	// ScratchMax is the capacity of a ScratchOutput; it holds several frames.
	ScratchMax = 512
)

// nextSeq advances a sequence byte, wrapping within MessageDest.
func nextSeq(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}

// Message is a validated frame.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte // frame data without header/trailer; empty for ACK/NAK
	CRC      uint16
}
