package mcu

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"adcshare/core"
	"adcshare/protocol"
	"adcshare/tinycompress"
)

// ErrDictionaryMismatch is returned when the firmware numbers a message
// differently from the host, or lacks it.
var ErrDictionaryMismatch = errors.New("firmware dictionary does not match host")

// maxDictionary bounds the compressed dictionary size.
const maxDictionary = 64 * 1024

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version   string            `json:"version"`
	Config    map[string]string `json:"config"`
	Commands  map[string]int    `json:"commands"`
	Responses map[string]int    `json:"responses"`
}

// lookup returns the ID the firmware gave signature.
func (d *Dictionary) lookup(signature string) (int, bool) {
	if id, ok := d.Commands[signature]; ok {
		return id, true
	}
	id, ok := d.Responses[signature]
	return id, ok
}

// RetrieveDictionary downloads the firmware dictionary in identify chunks,
// then checks every host message against it.
func (m *MCU) RetrieveDictionary() error {
	var data []byte
	for {
		chunk, err := m.sendIdentify(uint32(len(data)), core.IdentifyChunk)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", len(data), err)
		}
		if len(chunk) == 0 {
			break
		}
		data = append(data, chunk...)
		if len(data) > maxDictionary {
			return fmt.Errorf("dictionary exceeds %d bytes", maxDictionary)
		}
	}

	raw, err := tinycompress.Decompress(data)
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(raw, dict); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	if err := m.verify(dict); err != nil {
		return err
	}

	m.mu.Lock()
	m.dictionary = dict
	m.mu.Unlock()
	return nil
}

// sendIdentify requests count dictionary bytes at offset.
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	payload, err := m.request(core.MsgIdentify, m.identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, m.identified)
	if err != nil {
		return nil, err
	}

	respOffset, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response offset: %w", err)
	}
	if respOffset != offset {
		return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, respOffset)
	}

	data, err := protocol.DecodeVLQBytes(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response data: %w", err)
	}
	return data, nil
}

func (m *MCU) verify(dict *Dictionary) error {
	for _, cmd := range m.registry.Commands() {
		id, ok := dict.lookup(cmd.Signature())
		if !ok {
			return fmt.Errorf("%w: firmware lacks %q", ErrDictionaryMismatch, cmd.Signature())
		}
		if id != int(cmd.ID) {
			return fmt.Errorf("%w: %q is %d on firmware, %d on host", ErrDictionaryMismatch, cmd.Signature(), id, cmd.ID)
		}
	}
	return nil
}

// GetDictionary returns the dictionary retrieved by RetrieveDictionary, or
// nil before the first successful retrieval.
func (m *MCU) GetDictionary() *Dictionary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dictionary
}

// PrintDictionary writes a summary of the dictionary to w.
func (d *Dictionary) PrintDictionary(w io.Writer) {
	fmt.Fprintf(w, "Version: %s\n", d.Version)

	fmt.Fprintln(w, "Config:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, d.Config[k])
	}

	fmt.Fprintf(w, "Commands (%d):\n", len(d.Commands))
	printMessages(w, d.Commands)
	fmt.Fprintf(w, "Responses (%d):\n", len(d.Responses))
	printMessages(w, d.Responses)
}

func printMessages(w io.Writer, msgs map[string]int) {
	names := make([]string, 0, len(msgs))
	for name := range msgs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return msgs[names[i]] < msgs[names[j]] })
	for _, name := range names {
		fmt.Fprintf(w, "  [%d] %s\n", msgs[name], name)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
