package safetensors

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/gomlx/pkg/core/dtypes/float16"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"golang.org/x/exp/mmap"
)

// MMapReader provides streaming access to tensor data via io.ReaderAt.
type MMapReader struct {
	reader     *mmap.ReaderAt
	dataOffset int64
	Header     *Header
}

// NewMMapReader creates a new MMapReader for a specific .safetensors file of the model.
func (m *Model) NewMMapReader(fileName string) (*MMapReader, error) {
	localPath, err := m.Repo.DownloadFile(fileName)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to download %s", fileName)
	}
	return OpenMMapReader(localPath)
}

// OpenMMapReader memory-maps a local .safetensors file.
func OpenMMapReader(localPath string) (*MMapReader, error) {
	header, dataOffset, err := parseHeader(localPath)
	if err != nil {
		return nil, err
	}
	reader, err := mmap.Open(localPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to mmap %s", localPath)
	}
	return &MMapReader{
		reader:     reader,
		dataOffset: dataOffset,
		Header:     header,
	}, nil
}

// Close closes the underlying memory-mapped file.
func (mr *MMapReader) Close() error {
	return mr.reader.Close()
}

func (mr *MMapReader) metadata(tensorName string) (*TensorMetadata, error) {
	meta, ok := mr.Header.Tensors[tensorName]
	if !ok {
		return nil, errors.Wrapf(ErrTensorNotFound, "tensor %s", tensorName)
	}
	return meta, nil
}

// ReadTensor reads a tensor by name from the memory-mapped file.
func (mr *MMapReader) ReadTensor(tensorName string) (*tensors.Tensor, error) {
	meta, err := mr.metadata(tensorName)
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, err
	}
	t := tensors.FromShape(shapes.Make(dtype, meta.Shape...))

	// Read from mmap directly into tensor memory.
	tensorOffset := mr.dataOffset + meta.DataOffsets[0]
	var readErr error
	t.MutableBytes(func(data []byte) {
		fileBytes := meta.DataOffsets[1] - meta.DataOffsets[0]
		if int64(len(data)) != fileBytes {
			readErr = errors.Errorf("tensor %s with shape %s expected %d bytes, but the file has %d bytes",
				tensorName, t.Shape(), len(data), fileBytes)
			return
		}
		_, readErr = mr.reader.ReadAt(data, tensorOffset)
		if readErr == io.EOF {
			readErr = nil
		}
		if readErr != nil {
			readErr = errors.Wrapf(readErr, "failed to read tensor %s", tensorName)
		}
	})
	if readErr != nil {
		return nil, readErr
	}
	return t, nil
}

// ReadFloat32 reads a floating point tensor (F32, F64, F16 or BF16) converting it to float32.
func (mr *MMapReader) ReadFloat32(tensorName string) (*Float32Tensor, error) {
	meta, err := mr.metadata(tensorName)
	if err != nil {
		return nil, err
	}
	dtype, err := dtypeToGoMLX(meta.Dtype)
	if err != nil {
		return nil, errors.WithMessagef(err, "tensor %s", tensorName)
	}
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
	default:
		return nil, errors.Errorf("tensor %s has dtype %s, only F32, F16, BF16 and F64 can be read as float32", tensorName, meta.Dtype)
	}
	size := dtype.Size()
	n := meta.NumElements()
	if got := meta.DataOffsets[1] - meta.DataOffsets[0]; got != int64(n*size) {
		return nil, errors.Errorf("tensor %s with shape %v and dtype %s expected %d bytes, but the file has %d bytes",
			tensorName, meta.Shape, meta.Dtype, n*size, got)
	}
	raw := make([]byte, n*size)
	if _, err := mr.reader.ReadAt(raw, mr.dataOffset+meta.DataOffsets[0]); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "failed to read tensor %s", tensorName)
	}

	data := make([]float32, n)
	for i := range data {
		b := raw[i*size : (i+1)*size]
		switch dtype {
		case dtypes.Float32:
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		case dtypes.Float64:
			data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b)))
		case dtypes.Float16:
			data[i] = float16.FromBits(binary.LittleEndian.Uint16(b)).Float32()
		case dtypes.BFloat16:
			data[i] = bfloat16.FromBits(binary.LittleEndian.Uint16(b)).Float32()
		}
	}
	return &Float32Tensor{Name: tensorName, Shape: append([]int(nil), meta.Shape...), Data: data}, nil
}
