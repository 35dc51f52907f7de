// Package safetensors provides a Model object for safetensors-based models,
// from which one can load individual weights (tensors) or iterate over them, with access to headers.
//
// Example:
//
//	repo := hub.New("dominguesm/canarim-bert-nheengatu")
//	model, err := safetensors.New(repo)
//	if err != nil {
//		return err
//	}
//	weights, err := model.ReadFloat32("embeddings.word_embeddings.weight")
//
// Tensors can also be read as GoMLX tensors with GetTensor or IterTensors.
package safetensors

import (
	"encoding/json"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Index files looked for to detect sharded models.
var commonIndexFiles = []string{
	"model.safetensors.index.json",
	"pytorch_model.safetensors.index.json",
}

// Load loads the model from the repo, whether it's sharded or a single file.
// It automatically detects sharded models via index files, otherwise it uses "model.safetensors",
// or the first .safetensors file if there is no file with that name.
func (m *Model) Load() error {
	indexFile, isSharded, err := m.DetectShardedModel()
	if err != nil {
		return err
	}
	if isSharded {
		return m.LoadShardedModel(indexFile)
	}
	return m.LoadSingleFileModel()
}

// DetectShardedModel checks if the repository contains a sharded model and returns the index filename.
func (m *Model) DetectShardedModel() (string, bool, error) {
	if m.Repo == nil {
		return "", false, errors.New("Repo is nil, create the Model with New or NewEmpty first")
	}
	for filename, err := range m.Repo.IterFileNames() {
		if err != nil {
			return "", false, err
		}
		if slices.Contains(commonIndexFiles, path.Base(filename)) {
			return filename, true, nil
		}
	}
	return "", false, nil
}

// LoadSingleFileModel loads a single-file safetensors model.
func (m *Model) LoadSingleFileModel() error {
	if m.Repo == nil {
		return errors.New("Repo is nil, create the Model with New or NewEmpty first")
	}
	var candidates []string
	for filename, err := range m.Repo.IterFileNames() {
		if err != nil {
			return err
		}
		if strings.HasSuffix(filename, ".safetensors") {
			candidates = append(candidates, filename)
		}
	}
	if len(candidates) == 0 {
		return errors.Wrapf(ErrNoSafetensors, "in %s", m.Repo)
	}
	filename := candidates[0]
	if slices.Contains(candidates, "model.safetensors") {
		filename = "model.safetensors"
	}

	info, err := m.GetSafetensor(filename)
	if err != nil {
		return err
	}
	// Synthetic index with all tensors pointing to this one file.
	weightMap := make(map[string]string, len(info.Header.Tensors))
	for tensorName := range info.Header.Tensors {
		weightMap[tensorName] = filename
	}
	m.Index = &ShardedModelIndex{WeightMap: weightMap}
	m.IndexFile = filename
	klog.V(1).Infof("loaded %s from %s: %d tensors", filename, m.Repo, len(weightMap))
	return nil
}

// ErrNoSafetensors is returned (wrapped) when the repository has no safetensors weights.
var ErrNoSafetensors = errors.New("no .safetensors files found")

// LoadShardedModel loads a sharded model index file (typically model.safetensors.index.json).
func (m *Model) LoadShardedModel(indexFilename string) error {
	if m.Repo == nil {
		return errors.New("Repo is nil, create the Model with New or NewEmpty first")
	}
	localPath, err := m.Repo.DownloadFile(indexFilename)
	if err != nil {
		return errors.WithMessagef(err, "failed to download %s", indexFilename)
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", localPath)
	}
	var index ShardedModelIndex
	if err := json.Unmarshal(data, &index); err != nil {
		return errors.Wrap(err, "failed to parse sharded model index")
	}
	// Shard names are relative to the directory of the index file.
	if dir := path.Dir(indexFilename); dir != "." {
		for name, shard := range index.WeightMap {
			index.WeightMap[name] = path.Join(dir, shard)
		}
	}
	m.IndexFile = indexFilename
	m.Index = &index
	klog.V(1).Infof("loaded sharded index %s from %s: %d tensors", indexFilename, m.Repo, len(index.WeightMap))
	return nil
}

// GetSafetensor returns the parsed .safetensors file header for a specific tensor.
//
// It returns a FileInfo object for the .safetensors file, with its file name and header.
// The header holds metadata to all tensors contained in the file. Headers are cached.
func (m *Model) GetSafetensor(filename string) (*FileInfo, error) {
	if m.Repo == nil {
		return nil, errors.New("Repo is nil, create the Model with New or NewEmpty first")
	}
	if !strings.HasSuffix(filename, ".safetensors") {
		return nil, errors.Errorf("filename %s is not a .safetensors file", filename)
	}
	if header, ok := m.Headers[filename]; ok {
		return &FileInfo{Filename: filename, Header: header}, nil
	}
	localPath, err := m.Repo.DownloadFile(filename)
	if err != nil {
		return nil, err
	}
	header, _, err := parseHeader(localPath)
	if err != nil {
		return nil, err
	}
	if m.Headers == nil {
		m.Headers = make(map[string]*Header)
	}
	m.Headers[filename] = header
	return &FileInfo{Filename: filename, Header: header}, nil
}

// IterSafetensors returns an iterator over all .safetensors files used by the model.
//
// It yields FileInfo objects for each .safetensors file, with its file name and header.
func (m *Model) IterSafetensors() func(yield func(FileInfo, error) bool) {
	return func(yield func(FileInfo, error) bool) {
		if m.Index == nil {
			yield(FileInfo{}, errors.New("model empty (not loaded) call Load first"))
			return
		}
		for _, filename := range m.shardFiles() {
			info, err := m.GetSafetensor(filename)
			if err != nil {
				yield(FileInfo{}, errors.WithMessagef(err, "failed to parse header for %s", filename))
				return
			}
			if !yield(*info, nil) {
				return
			}
		}
	}
}

// shardFiles returns the distinct files of the weight map, sorted.
func (m *Model) shardFiles() []string {
	var files []string
	for _, filename := range m.Index.WeightMap {
		if !slices.Contains(files, filename) {
			files = append(files, filename)
		}
	}
	slices.Sort(files)
	return files
}

// GetTensor by its name, as a GoMLX tensor.
func (m *Model) GetTensor(tensorName string) (*TensorAndName, error) {
	filename, err := m.GetTensorFilename(tensorName)
	if err != nil {
		return nil, err
	}
	return m.GetTensorFromFile(filename, tensorName)
}

// GetTensorFromFile loads a tensor from within a .safetensors file and converts it to a GoMLX tensor.
//
// This requires a loaded model -- see Model.Load().
func (m *Model) GetTensorFromFile(fileName, tensorName string) (*TensorAndName, error) {
	if m.Index == nil || len(m.Index.WeightMap) == 0 {
		return nil, errors.New("model empty (not loaded) call Load first")
	}
	reader, err := m.NewMMapReader(fileName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	tensor, err := reader.ReadTensor(tensorName)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to read tensor %s from %s", tensorName, fileName)
	}
	return &TensorAndName{Name: tensorName, Tensor: tensor}, nil
}

// ReadFloat32 reads the tensor converted to float32.
func (m *Model) ReadFloat32(tensorName string) (*Float32Tensor, error) {
	if m.Index == nil {
		return nil, errors.New("model empty (not loaded) call Load first")
	}
	fileName, err := m.GetTensorFilename(tensorName)
	if err != nil {
		return nil, err
	}
	reader, err := m.NewMMapReader(fileName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadFloat32(tensorName)
}

// IterTensors returns an iterator over all tensors as GoMLX tensors.
// It opens each shard file once and reads its tensors in file order.
func (m *Model) IterTensors() func(yield func(TensorAndName, error) bool) {
	return func(yield func(TensorAndName, error) bool) {
		if m.Index == nil || len(m.Index.WeightMap) == 0 {
			yield(TensorAndName{}, errors.New("model empty (not loaded) call Load first"))
			return
		}
		shardToTensors := make(map[string][]string)
		for tensorName, fileName := range m.Index.WeightMap {
			shardToTensors[fileName] = append(shardToTensors[fileName], tensorName)
		}
		for _, fileName := range m.shardFiles() {
			reader, err := m.NewMMapReader(fileName)
			if err != nil {
				yield(TensorAndName{}, err)
				return
			}
			for _, tensorName := range sortTensorsByOffset(shardToTensors[fileName], reader.Header) {
				tensor, err := reader.ReadTensor(tensorName)
				if err != nil {
					_ = reader.Close()
					yield(TensorAndName{}, err)
					return
				}
				if !yield(TensorAndName{Name: tensorName, Tensor: tensor}, nil) {
					_ = reader.Close()
					return
				}
			}
			_ = reader.Close()
		}
	}
}

// sortTensorsByOffset sorts tensor names by their file offset for sequential reading.
func sortTensorsByOffset(tensorNames []string, header *Header) []string {
	type tensorOffset struct {
		name   string
		offset int64
	}
	offsets := make([]tensorOffset, 0, len(tensorNames))
	for _, name := range tensorNames {
		if meta, ok := header.Tensors[name]; ok {
			offsets = append(offsets, tensorOffset{name: name, offset: meta.DataOffsets[0]})
		}
	}
	slices.SortFunc(offsets, func(a, b tensorOffset) int {
		switch {
		case a.offset < b.offset:
			return -1
		case a.offset > b.offset:
			return 1
		}
		return strings.Compare(a.name, b.name)
	})
	result := make([]string, len(offsets))
	for i, to := range offsets {
		result[i] = to.name
	}
	return result
}
