package policy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
)

// ErrBadCheckpoint indicates a file that is not a readable state dict.
var ErrBadCheckpoint = errors.New("bad checkpoint")

var checkpointMagic = [4]byte{'A', '2', 'C', 'W'}

const checkpointVersion uint32 = 1

// Tensor is one named entry of a state dict.
type Tensor struct {
	Shape []int
	Data  []float64
}

// StateDict maps parameter names to tensors.
type StateDict map[string]Tensor

// WriteStateDict encodes params as little-endian float32 tensors:
//
//	magic "A2CW" | version u32 | count u32 |
//	  (name_len u16 | name | ndim u32 | dims u32... | data f32...)*
func WriteStateDict(w io.Writer, params []Parameter) error {
	bw := bufio.NewWriter(w)
	le := binary.LittleEndian

	if _, err := bw.Write(checkpointMagic[:]); err != nil {
		return err
	}
	header := []uint32{checkpointVersion, uint32(len(params))}
	if err := binary.Write(bw, le, header); err != nil {
		return err
	}

	for _, p := range params {
		if len(p.Name) > math.MaxUint16 {
			return fmt.Errorf("parameter name too long: %d bytes", len(p.Name))
		}
		if err := binary.Write(bw, le, uint16(len(p.Name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(p.Name); err != nil {
			return err
		}
		dims := make([]uint32, 0, len(p.Shape)+1)
		dims = append(dims, uint32(len(p.Shape)))
		for _, d := range p.Shape {
			dims = append(dims, uint32(d))
		}
		if err := binary.Write(bw, le, dims); err != nil {
			return err
		}
		data := make([]float32, len(p.Data))
		for i, v := range p.Data {
			data[i] = float32(v)
		}
		if err := binary.Write(bw, le, data); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Smallest possible tensor record: name_len u16 and ndim u32.
const minTensorBytes = 2 + 4

// readChunk bounds each float32 allocation while decoding tensor data.
const readChunk = 1 << 16

// ReadStateDict decodes a stream written by WriteStateDict. Counts and sizes
// read from the stream are checked against the bytes left when r reports
// its length, and tensor data is read in bounded chunks otherwise.
func ReadStateDict(r io.Reader) (StateDict, error) {
	return readStateDict(r, remainingBytes(r))
}

func readStateDict(r io.Reader, remaining int64) (StateDict, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian
	consumed := int64(0)
	fits := func(n int64) bool {
		return remaining < 0 || n <= remaining-consumed
	}

	var magic [4]byte
	if _, err := io.ReadFull(br, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: reading magic: %v", ErrBadCheckpoint, err)
	}
	if magic != checkpointMagic {
		return nil, fmt.Errorf("%w: unexpected magic %q", ErrBadCheckpoint, magic[:])
	}
	var header [2]uint32
	if err := binary.Read(br, le, &header); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrBadCheckpoint, err)
	}
	consumed += 12
	if header[0] != checkpointVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadCheckpoint, header[0])
	}
	count := header[1]
	if !fits(int64(count) * minTensorBytes) {
		return nil, fmt.Errorf("%w: %d tensors cannot fit in %d bytes", ErrBadCheckpoint, count, remaining-consumed)
	}

	sd := make(StateDict)
	for i := uint32(0); i < count; i++ {
		var nameLen uint16
		if err := binary.Read(br, le, &nameLen); err != nil {
			return nil, fmt.Errorf("%w: tensor %d: %v", ErrBadCheckpoint, i, err)
		}
		consumed += 2
		if !fits(int64(nameLen)) {
			return nil, fmt.Errorf("%w: tensor %d name overruns the file", ErrBadCheckpoint, i)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, fmt.Errorf("%w: tensor %d name: %v", ErrBadCheckpoint, i, err)
		}
		consumed += int64(nameLen)
		var ndim uint32
		if err := binary.Read(br, le, &ndim); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadCheckpoint, name, err)
		}
		consumed += 4
		if ndim > 8 {
			return nil, fmt.Errorf("%w: %s: %d dimensions", ErrBadCheckpoint, name, ndim)
		}
		dims := make([]uint32, ndim)
		if err := binary.Read(br, le, dims); err != nil {
			return nil, fmt.Errorf("%w: %s dims: %v", ErrBadCheckpoint, name, err)
		}
		consumed += 4 * int64(ndim)
		shape := make([]int, ndim)
		size := int64(1)
		for j, d := range dims {
			shape[j] = int(d)
			size *= int64(d)
			if size > 1<<28 {
				return nil, fmt.Errorf("%w: %s too large", ErrBadCheckpoint, name)
			}
		}
		if !fits(4 * size) {
			return nil, fmt.Errorf("%w: %s needs %d bytes, %d left", ErrBadCheckpoint, name, 4*size, remaining-consumed)
		}
		data, err := readFloats(br, int(size))
		if err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", ErrBadCheckpoint, name, err)
		}
		consumed += 4 * size
		sd[string(name)] = Tensor{Shape: shape, Data: data}
	}
	return sd, nil
}

// readFloats decodes n little-endian float32 values, growing the result
// only as data arrives.
func readFloats(r io.Reader, n int) ([]float64, error) {
	data := make([]float64, 0, min(n, readChunk))
	buf := make([]float32, min(n, readChunk))
	for len(data) < n {
		chunk := buf[:min(n-len(data), readChunk)]
		if err := binary.Read(r, binary.LittleEndian, chunk); err != nil {
			return nil, err
		}
		for _, v := range chunk {
			data = append(data, float64(v))
		}
	}
	return data, nil
}

// remainingBytes reports how many bytes r can still yield, or -1 if unknown.
func remainingBytes(r io.Reader) int64 {
	switch src := r.(type) {
	case interface{ Len() int }:
		return int64(src.Len())
	case *os.File:
		info, err := src.Stat()
		if err != nil || !info.Mode().IsRegular() {
			return -1
		}
		pos, err := src.Seek(0, io.SeekCurrent)
		if err != nil {
			return -1
		}
		return info.Size() - pos
	}
	return -1
}

// LoadStateDict copies sd into the network. Missing, unexpected or
// differently shaped tensors are errors and leave the network untouched.
func LoadStateDict(net Network, sd StateDict) error {
	params := net.Parameters()
	for _, p := range params {
		t, ok := sd[p.Name]
		if !ok {
			return fmt.Errorf("%w: missing key %q", ErrBadCheckpoint, p.Name)
		}
		if !slices.Equal(t.Shape, p.Shape) || len(t.Data) != len(p.Data) {
			return fmt.Errorf("%w: %s has shape %v, network expects %v", ErrShapeMismatch, p.Name, t.Shape, p.Shape)
		}
	}
	if len(sd) != len(params) {
		for name := range sd {
			if !slices.ContainsFunc(params, func(p Parameter) bool { return p.Name == name }) {
				return fmt.Errorf("%w: unexpected key %q", ErrBadCheckpoint, name)
			}
		}
	}
	for _, p := range params {
		copy(p.Data, sd[p.Name].Data)
	}
	return nil
}

// SaveCheckpoint writes the network's weights to path, creating parent directories.
func SaveCheckpoint(path string, net Network) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint: %w", err)
	}
	if err := WriteStateDict(f, net.Parameters()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write checkpoint %s: %w", path, err)
	}
	return f.Close()
}

// LoadCheckpoint reads path into net.
func LoadCheckpoint(path string, net Network) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}
	defer f.Close()

	sd, err := ReadStateDict(f)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	if err := LoadStateDict(net, sd); err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", path, err)
	}
	return nil
}
