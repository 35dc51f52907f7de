package safetensors

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"slices"

	"github.com/pkg/errors"
)

// WriteFloat32 writes the tensors as F32 to a .safetensors file at filePath, with the optional
// metadata. Tensors are stored in name order.
func WriteFloat32(filePath string, tensors []*Float32Tensor, metadata map[string]string) error {
	sorted := slices.Clone(tensors)
	slices.SortFunc(sorted, func(a, b *Float32Tensor) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, t := range sorted {
		n := 1
		for _, d := range t.Shape {
			n *= d
		}
		if n != len(t.Data) {
			return errors.Errorf("tensor %s has shape %v but %d values", t.Name, t.Shape, len(t.Data))
		}
		size := int64(4 * n)
		header[t.Name] = TensorMetadata{Dtype: "F32", Shape: t.Shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return errors.Wrap(err, "encoding safetensors header")
	}
	// The data section is aligned to 8 bytes by padding the header with spaces.
	for len(headerBytes)%8 != 0 {
		headerBytes = append(headerBytes, ' ')
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %s", filePath)
	}
	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerBytes))); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", filePath)
	}
	_, _ = w.Write(headerBytes)
	var buf [4]byte
	for _, t := range sorted {
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			_, _ = w.Write(buf[:])
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing %s", filePath)
	}
	return errors.Wrapf(f.Close(), "closing %s", filePath)
}
