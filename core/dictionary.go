package core

import (
	"sort"
	"sync"

	"adcshare/protocol"
	"adcshare/tinycompress"
)

// Identify message names. They are registered after the ADC messages.
const (
	MsgIdentify         = "identify"
	MsgIdentifyResponse = "identify_response"
)

// IdentifyChunk is the largest dictionary slice one identify returns.
const IdentifyChunk = 40

// Dictionary is the data dictionary the host downloads with identify:
// version, constants and every message with its ID, as zlib JSON.
type Dictionary struct {
	mu        sync.RWMutex
	registry  *CommandRegistry
	constants map[string]string
	version   string
	cached    []byte
}

// NewDictionary creates a dictionary over reg.
func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		registry:  reg,
		constants: make(map[string]string),
		version:   protocol.Version,
	}
}

// AddConstant adds a constant to the dictionary
func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = valueToString(value)
	d.cached = nil
}

// JSON renders the uncompressed dictionary. Messages with a handler are
// commands, the rest are responses.
func (d *Dictionary) JSON() []byte {
	cmds := d.registry.Commands()

	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]byte, 0, 512)
	result = append(result, `{"version":`...)
	result = appendQuoted(result, d.version)
	result = append(result, `,"config":{`...)

	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			result = append(result, ',')
		}
		result = appendQuoted(result, name)
		result = append(result, ':')
		result = appendQuoted(result, d.constants[name])
	}

	result = append(result, `},"commands":{`...)
	result = appendMessages(result, cmds, true)
	result = append(result, `},"responses":{`...)
	result = appendMessages(result, cmds, false)
	result = append(result, "}}"...)
	return result
}

func appendMessages(result []byte, cmds []Command, handled bool) []byte {
	first := true
	for _, cmd := range cmds {
		if (cmd.Handler != nil) != handled {
			continue
		}
		if !first {
			result = append(result, ',')
		}
		result = appendQuoted(result, cmd.Signature())
		result = append(result, ':')
		result = append(result, itoa(int(cmd.ID))...)
		first = false
	}
	return result
}

// appendQuoted appends s as a JSON string. Message formats only need the
// quote and backslash escapes.
func appendQuoted(result []byte, s string) []byte {
	result = append(result, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			result = append(result, '\\')
		}
		result = append(result, s[i])
	}
	return append(result, '"')
}

// Build compresses and caches the dictionary. Call it after every message
// and constant is registered.
func (d *Dictionary) Build() []byte {
	data := tinycompress.Compress(d.JSON())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = data
	return data
}

// Compressed returns the cached dictionary, building it if needed.
func (d *Dictionary) Compressed() []byte {
	d.mu.RLock()
	data := d.cached
	d.mu.RUnlock()
	if data != nil {
		return data
	}
	return d.Build()
}

// GetChunk returns up to count bytes of the compressed dictionary at
// offset. An offset at or past the end returns an empty chunk.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Compressed()
	if offset >= uint32(len(data)) {
		return []byte{}
	}

	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}

	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// RegisterIdentifyMessages registers identify and its response on r and
// returns their IDs. With a nil dictionary no handler is installed.
func RegisterIdentifyMessages(r *CommandRegistry, d *Dictionary, send ResponseSender) (identify, response uint16) {
	var handler CommandHandler
	if d != nil {
		handler = func(data *[]byte) error {
			offset, err := protocol.DecodeVLQUint(data)
			if err != nil {
				return err
			}
			count, err := protocol.DecodeVLQUint8(data)
			if err != nil {
				return err
			}
			if count > IdentifyChunk {
				count = IdentifyChunk
			}
			chunk := d.GetChunk(offset, count)
			send(response, func(output protocol.OutputBuffer) {
				protocol.EncodeVLQUint(output, offset)
				protocol.EncodeVLQBytes(output, chunk)
			})
			return nil
		}
	}
	identify = r.Register(MsgIdentify, "offset=%u count=%c", handler)
	response = r.Register(MsgIdentifyResponse, "offset=%u data=%.*s", nil)
	return identify, response
}

func valueToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case uint8:
		return itoa(int(val))
	case uint16:
		return itoa(int(val))
	case uint32:
		return itoa(int(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}
