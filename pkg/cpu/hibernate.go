package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// humanReadableState is the JSON-serializable snapshot of CPU control state.
type humanReadableState struct {
	Regs      map[string]uint32 `json:"regs"`
	ProgLen   uint32            `json:"prog_len"`
	MemSize   int               `json:"mem_size"`
	Halted    bool              `json:"halted"`
	Steps     uint64            `json:"steps"`
	NextInstr string            `json:"next_instr,omitempty"`
}

// HibernateToBytes serialises the machine into an in-memory ZIP archive
// holding cpu_state.json and memory.bin.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := humanReadableState{
		Regs:    make(map[string]uint32, NumRegisters),
		ProgLen: c.ProgLen,
		MemSize: len(c.Memory),
		Halted:  c.Halted,
		Steps:   c.Steps,
	}
	for i, v := range c.Regs {
		state.Regs[RegisterName(byte(i))] = v
	}
	if ip := c.Regs[RegIP]; ip < uint32(len(c.Memory)) {
		state.NextInstr = OpcodeName(c.Memory[ip])
	}

	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cpu_state: %w", err)
	}
	if err := writeZipEntry(zw, "cpu_state.json", jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "memory.bin", c.Memory); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes rebuilds a CPU from an archive produced by HibernateToBytes.
// I/O streams and the interrupt handler are not part of the snapshot.
func RestoreFromBytes(data []byte) (*CPU, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "cpu_state.json")
	if err != nil {
		return nil, err
	}
	var state humanReadableState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return nil, fmt.Errorf("unmarshal cpu_state: %w", err)
	}

	mem, err := readZipEntry(fileMap, "memory.bin")
	if err != nil {
		return nil, err
	}
	if len(mem) != state.MemSize {
		return nil, fmt.Errorf("memory.bin holds %d bytes, cpu_state.json says %d", len(mem), state.MemSize)
	}
	if state.ProgLen > uint32(len(mem)) {
		return nil, fmt.Errorf("program length %d exceeds memory size %d", state.ProgLen, len(mem))
	}

	c := &CPU{
		Memory:  mem,
		ProgLen: state.ProgLen,
		Halted:  state.Halted,
		Steps:   state.Steps,
	}
	for name, v := range state.Regs {
		idx, ok := RegisterIndex(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q in cpu_state.json", ErrInvalidRegister, name)
		}
		c.Regs[idx] = v
	}
	return c, nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path.
func RestoreFromFile(path string) (*CPU, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %q: %w", name, err)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, fmt.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %q: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
