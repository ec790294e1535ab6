package protocol

import (
	"errors"
	"io"
	"runtime"
	"sync/atomic"
)

// CommandHandler is a function type for handling decoded commands
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the MCU side of the link: it validates incoming frames,
// dispatches their commands in sequence order and acknowledges each frame.
type Transport struct {
	scanner      frameScanner
	nextSequence uint32 // atomic; expected host sequence, also used for replies

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()      // Called when host reset is detected
	flushCallback func()      // Called to push ACKs out immediately
	errorCallback func(error) // Called when a frame fails to dispatch
	failed        uint32      // atomic; frames that failed to dispatch
}

// NewTransport creates a new Transport instance
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSequence: MessageDest,
		output:       output,
		handler:      handler,
	}
	t.scanner.synchronized = true
	t.scanner.onResync = t.encodeAckNak
	return t
}

// Receive processes incoming data from the input buffer and pops what it
// consumed.
func (t *Transport) Receive(input InputBuffer) {
	consumed := t.scanner.scan(input.Data(), t.receiveFrame)
	if consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) receiveFrame(msg *Message) {
	if msg.Sequence&^MessageSeqMask != MessageDest {
		t.scanner.synchronized = false
		return
	}

	expected := uint8(atomic.LoadUint32(&t.nextSequence))
	if msg.Sequence == MessageDest && expected != MessageDest {
		// Host restarted its sequence.
		atomic.StoreUint32(&t.nextSequence, MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}

	if msg.Sequence == expected {
		atomic.StoreUint32(&t.nextSequence, uint32(nextSeq(expected)))
		if err := t.parseFrame(msg.Payload); err != nil {
			atomic.AddUint32(&t.failed, 1)
			if t.errorCallback != nil {
				t.errorCallback(err)
			}
		}
	}
	// A mismatched sequence still gets an ACK carrying the expected
	// sequence, which the host treats as a NAK.
	t.encodeAckNak()
}

// parseFrame dispatches every command in frame.
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.synchronized = false
			err = errors.New("command handler panicked")
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.synchronized = false
			return err
		}
		if t.handler == nil {
			return nil
		}
		// A handler error leaves the rest of the frame undecodable.
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) encodeAckNak() {
	EncodeFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), nil)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// SendCommand queues a response message with its arguments.
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	EncodeFrame(t.output, uint8(atomic.LoadUint32(&t.nextSequence)), func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset resets the transport state (useful after USB disconnect/reconnect)
func (t *Transport) Reset() {
	t.scanner.synchronized = true
	atomic.StoreUint32(&t.nextSequence, MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback sets a callback to be called when host reset is detected
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetErrorCallback sets a callback to be called with every frame dispatch
// error. The frame is still acknowledged.
func (t *Transport) SetErrorCallback(callback func(error)) {
	t.errorCallback = callback
}

// Errors returns the number of frames that failed to dispatch.
func (t *Transport) Errors() uint32 {
	return atomic.LoadUint32(&t.failed)
}

// SetFlushCallback sets a callback to immediately flush ACK messages
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Serve runs t over a byte stream until a read or write fails. output
// must be the buffer t was created with; it is flushed to rw after every
// read. Reads returning no data yield to other goroutines. io.EOF ends the
// loop with a nil error.
func Serve(rw io.ReadWriter, t *Transport, output *ScratchOutput) error {
	input := NewFifoBuffer(256)

	flush := func() error {
		if output.CurPosition() == 0 {
			return nil
		}
		_, err := rw.Write(output.Result())
		output.Reset()
		return err
	}

	buf := make([]byte, 64)
	for {
		n, err := rw.Read(buf[:min(len(buf), input.Free())])
		if n > 0 {
			input.Write(buf[:n])
			t.Receive(input)
			if werr := flush(); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if n == 0 {
			runtime.Gosched()
		}
	}
}
