// Package hub gives access to model repositories in the HuggingFace Hub, or to local directories
// laid out the same way.
//
// Example:
//
//	repo := hub.New("dominguesm/canarim-bert-nheengatu").WithAuth(os.Getenv("HF_TOKEN"))
//	configPath, err := repo.DownloadFile("config.json")
//
// Files are downloaded once into the cache directory and reused afterwards. If the id given to New
// is an existing local directory, files are read from there and nothing is downloaded.
package hub

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nheengatu-lab/yrlkit/internal/downloader"
	"github.com/nheengatu-lab/yrlkit/internal/files"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// DefaultEndpoint is the HuggingFace Hub URL. It can be overridden with the HF_ENDPOINT environment variable.
	DefaultEndpoint = "https://huggingface.co"

	// DefaultCacheDir is where files are downloaded to. It can be overridden with the YRLKIT_CACHE
	// environment variable, or per repo with Repo.WithCacheDir.
	DefaultCacheDir = "~/.cache/yrlkit/hub"

	// DefaultRevision used when none is given.
	DefaultRevision = "main"

	// DefaultDirCreationPerm is used when creating cache directories.
	DefaultDirCreationPerm = os.FileMode(0755)
)

// ErrFileNotFound is returned (wrapped) when a file is not part of the repository.
var ErrFileNotFound = errors.New("file not found in repository")

// ErrOffline is returned (wrapped) when a file would need to be downloaded but the repo is offline.
var ErrOffline = errors.New("file not in cache and repository is offline")

// Repo represents a model repository. Create it with New, and configure it with the With* methods
// before the first use.
type Repo struct {
	// ID of the model, e.g.: "neuralmind/bert-base-portuguese-cased", or a local directory.
	ID string

	// MaxParallelDownload limits the number of simultaneous downloads. 0 uses the downloader default.
	MaxParallelDownload int

	revision  string
	authToken string
	cacheDir  string
	endpoint  string
	offline   bool
	localDir  string
	progress  downloader.ProgressCallback

	downloadManager *downloader.Manager
	fileNames       []string
	listErr         error
}

// New creates a Repo for the given model id. If id is an existing directory the Repo is local.
func New(id string) *Repo {
	r := &Repo{
		ID:       id,
		revision: DefaultRevision,
		cacheDir: DefaultCacheDir,
		endpoint: DefaultEndpoint,
	}
	if env := os.Getenv("YRLKIT_CACHE"); env != "" {
		r.cacheDir = env
	}
	if env := os.Getenv("HF_ENDPOINT"); env != "" {
		r.endpoint = strings.TrimSuffix(env, "/")
	}
	if dir := files.ReplaceTildeInDir(id); files.IsDir(dir) {
		r.localDir = dir
	}
	return r
}

// WithAuth sets the token used to access private or gated repositories.
func (r *Repo) WithAuth(token string) *Repo {
	r.authToken = token
	r.downloadManager, r.listErr = nil, nil
	return r
}

// WithRevision sets the branch, tag or commit to use. Default is "main".
func (r *Repo) WithRevision(revision string) *Repo {
	r.revision = revision
	r.fileNames, r.listErr = nil, nil
	return r
}

// WithCacheDir sets the directory where downloaded files are stored. A leading "~" is expanded.
func (r *Repo) WithCacheDir(dir string) *Repo {
	if dir != "" {
		r.cacheDir = dir
	}
	return r
}

// WithEndpoint sets the Hub URL, mostly useful for mirrors and tests.
func (r *Repo) WithEndpoint(endpoint string) *Repo {
	r.endpoint = strings.TrimSuffix(endpoint, "/")
	r.listErr = nil
	return r
}

// WithOffline disables network access: only local repos and files already in the cache are usable.
func (r *Repo) WithOffline(offline bool) *Repo {
	r.offline = offline
	return r
}

// WithProgress sets a callback called while files are downloaded.
func (r *Repo) WithProgress(fn downloader.ProgressCallback) *Repo {
	r.progress = fn
	return r
}

// IsLocal returns whether the repo points to a local directory.
func (r *Repo) IsLocal() bool {
	return r.localDir != ""
}

// String implements fmt.Stringer.
func (r *Repo) String() string {
	if r.IsLocal() {
		return r.localDir
	}
	return r.ID + "@" + r.revision
}

// repoCacheDir is where the files of this repo/revision are stored.
func (r *Repo) repoCacheDir() string {
	name := "models--" + strings.ReplaceAll(r.ID, "/", "--")
	return filepath.Join(files.ReplaceTildeInDir(r.cacheDir), name, "snapshots", r.revision)
}

func (r *Repo) fileURL(fileName string) string {
	parts := strings.Split(fileName, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return r.endpoint + "/" + r.ID + "/resolve/" + url.PathEscape(r.revision) + "/" + strings.Join(parts, "/")
}

// repoInfo is the subset of the Hub model API response we use.
type repoInfo struct {
	ID       string `json:"id"`
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

func (r *Repo) listFiles(ctx context.Context) ([]string, error) {
	if r.fileNames != nil {
		return r.fileNames, nil
	}
	if r.listErr != nil {
		return nil, r.listErr
	}
	var names []string
	switch {
	case r.IsLocal():
		err := filepath.WalkDir(r.localDir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != r.localDir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(r.localDir, p)
			if err != nil {
				return err
			}
			names = append(names, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "listing files in %q", r.localDir)
		}

	case r.offline:
		dir := r.repoCacheDir()
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasSuffix(p, ".lock") || strings.HasSuffix(p, ".downloading") {
				return nil
			}
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			names = append(names, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(ErrOffline, "listing cached files of %s: %v", r, err)
		}

	default:
		apiURL := r.endpoint + "/api/models/" + r.ID + "/revision/" + url.PathEscape(r.revision)
		var info repoInfo
		if err := r.getDownloadManager().FetchJSON(ctx, apiURL, &info); err != nil {
			err = errors.WithMessagef(err, "listing files of %s", r)
			// A cancelled listing may succeed later; anything else (401, 404, bad JSON) won't.
			if ctx.Err() == nil {
				r.listErr = err
			}
			return nil, err
		}
		for _, s := range info.Siblings {
			names = append(names, s.RFilename)
		}
	}
	slices.Sort(names)
	r.fileNames = names
	klog.V(2).Infof("repo %s has %d files", r, len(names))
	return names, nil
}

// IterFileNames iterates over the file names in the repository.
// On error it yields ("", err) once and stops.
func (r *Repo) IterFileNames() func(yield func(string, error) bool) {
	return func(yield func(string, error) bool) {
		names, err := r.listFiles(context.Background())
		if err != nil {
			yield("", err)
			return
		}
		for _, name := range names {
			if !yield(name, nil) {
				return
			}
		}
	}
}

// LookupFile returns whether the repository has the given file, or the error listing the
// repository (e.g. unauthorized access to a gated model).
//
// A failed remote listing is remembered, so following lookups fail without a new request.
func (r *Repo) LookupFile(fileName string) (bool, error) {
	names, err := r.listFiles(context.Background())
	if err != nil {
		return false, err
	}
	_, found := slices.BinarySearch(names, fileName)
	return found, nil
}

// HasFile is like LookupFile, but errors listing the repository are logged and reported as false.
func (r *Repo) HasFile(fileName string) bool {
	found, err := r.LookupFile(fileName)
	if err != nil {
		klog.Warningf("failed to list files of %s: %v", r, err)
		return false
	}
	return found
}

// DownloadFile returns the local path to fileName, downloading it first if needed.
func (r *Repo) DownloadFile(fileName string) (string, error) {
	return r.DownloadFileContext(context.Background(), fileName)
}

// DownloadFileContext is like DownloadFile, but the download can be interrupted by ctx.
func (r *Repo) DownloadFileContext(ctx context.Context, fileName string) (string, error) {
	if r.IsLocal() {
		localPath := filepath.Join(r.localDir, filepath.FromSlash(fileName))
		if !files.Exists(localPath) {
			return "", errors.Wrapf(ErrFileNotFound, "%q in %s", fileName, r)
		}
		return localPath, nil
	}

	filePath := filepath.Join(r.repoCacheDir(), filepath.FromSlash(path.Clean(fileName)))
	if files.Exists(filePath) {
		return filePath, nil
	}
	if r.offline {
		return "", errors.Wrapf(ErrOffline, "%q of %s", fileName, r)
	}
	names, err := r.listFiles(ctx)
	if err != nil {
		return "", err
	}
	if _, found := slices.BinarySearch(names, fileName); !found {
		return "", errors.Wrapf(ErrFileNotFound, "%q in %s", fileName, r)
	}
	if err := r.lockedDownload(ctx, r.fileURL(fileName), filePath, false, r.progress); err != nil {
		return "", err
	}
	return filePath, nil
}

// DownloadFiles downloads all the given files and returns their local paths, in the same order.
func (r *Repo) DownloadFiles(fileNames ...string) ([]string, error) {
	paths := make([]string, 0, len(fileNames))
	for _, name := range fileNames {
		p, err := r.DownloadFile(name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// ReadJSON downloads (if needed) fileName and decodes it as JSON into v.
func (r *Repo) ReadJSON(fileName string, v any) error {
	localPath, err := r.DownloadFile(fileName)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrapf(err, "reading %q", localPath)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return errors.Wrapf(err, "parsing %q of %s", fileName, r)
	}
	return nil
}
