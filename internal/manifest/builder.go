package manifest

import (
	"context"
	"crypto/md5"  // #nosec G501 - optional legacy digest, not used for security
	"crypto/sha1" // #nosec G505 - mandatory archival digest, not used for security
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// Algorithm names.
const (
	SHA1    = "sha1"
	SHA256  = "sha256"
	MD5     = "md5"
	Blake2b = "blake2b"
)

// DefaultBlockSize is the read size used when streaming payload files.
const DefaultBlockSize = 64 * 1024

// DefaultAlgorithms are the digests every manifest carries.
var DefaultAlgorithms = []string{SHA1, SHA256}

// Options configures a Builder.
type Options struct {
	// Algorithms must include sha1 and sha256; md5 and blake2b are optional.
	Algorithms []string
	// Workers bounds how many files are hashed at once. Zero means GOMAXPROCS.
	Workers int
	// BlockSize is the streaming read size. Zero means DefaultBlockSize.
	BlockSize int
	Logger    *zap.Logger
}

// Builder computes manifests.
type Builder struct {
	algorithms []string
	workers    int
	blockSize  int
	log        *zap.Logger
}

// NewBuilder validates opts and returns a Builder.
func NewBuilder(opts Options) (*Builder, error) {
	algs := opts.Algorithms
	if len(algs) == 0 {
		algs = DefaultAlgorithms
	}

	seen := map[string]bool{}
	var clean []string
	for _, a := range algs {
		a = strings.ToLower(strings.TrimSpace(a))
		switch a {
		case SHA1, SHA256, MD5, Blake2b:
		default:
			return nil, fmt.Errorf("%w: unknown algorithm %q", ErrAlgorithm, a)
		}
		if !seen[a] {
			seen[a] = true
			clean = append(clean, a)
		}
	}
	for _, req := range DefaultAlgorithms {
		if !seen[req] {
			return nil, fmt.Errorf("%w: %s is required", ErrAlgorithm, req)
		}
	}

	b := &Builder{
		algorithms: clean,
		workers:    opts.Workers,
		blockSize:  opts.BlockSize,
		log:        opts.Logger,
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	if b.blockSize <= 0 {
		b.blockSize = DefaultBlockSize
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b, nil
}

// Algorithms returns the configured digests.
func (b *Builder) Algorithms() []string {
	return append([]string(nil), b.algorithms...)
}

// Build hashes files and returns their manifest sorted by relative path.
// Paths are made relative to root and slash-separated. If any file cannot
// be read the whole build fails with a *ChecksumError and no manifest.
func (b *Builder) Build(ctx context.Context, root string, files []string) (Manifest, error) {
	uniq := make([]string, 0, len(files))
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if !seen[f] {
			seen[f] = true
			uniq = append(uniq, f)
		}
	}

	entries := make(Manifest, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, f := range uniq {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e, err := b.entry(gctx, root, f)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	for i := 1; i < len(entries); i++ {
		if entries[i].Path == entries[i-1].Path {
			return nil, fmt.Errorf("duplicate manifest path %s", entries[i].Path)
		}
	}
	b.log.Debug("manifest built", zap.String("root", root), zap.Int("files", len(entries)))
	return entries, nil
}

func (b *Builder) entry(ctx context.Context, root, file string) (Entry, error) {
	rel, err := relPath(root, file)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Stat(file)
	if err != nil {
		return Entry{}, &ChecksumError{Path: file, Err: err}
	}
	if !info.Mode().IsRegular() {
		return Entry{}, &ChecksumError{Path: file, Err: errors.New("not a regular file")}
	}

	sums, err := b.digest(ctx, file)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Basename: path.Base(rel),
		Blake2b:  sums[Blake2b],
		MD5:      sums[MD5],
		Path:     rel,
		SHA1:     sums[SHA1],
		SHA256:   sums[SHA256],
		Size:     info.Size(),
	}, nil
}

// digest streams file once, in BlockSize reads, through every configured hash.
func (b *Builder) digest(ctx context.Context, file string) (map[string]string, error) {
	hashes := make(map[string]hash.Hash, len(b.algorithms))
	writers := make([]io.Writer, 0, len(b.algorithms))
	for _, a := range b.algorithms {
		h := newHash(a)
		hashes[a] = h
		writers = append(writers, h)
	}
	w := io.MultiWriter(writers...)

	// #nosec G304 - payload path listed by the record store
	f, err := os.Open(file)
	if err != nil {
		return nil, &ChecksumError{Path: file, Err: err}
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, b.blockSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, &ChecksumError{Path: file, Err: rerr}
		}
	}

	out := make(map[string]string, len(hashes))
	for a, h := range hashes {
		out[a] = hex.EncodeToString(h.Sum(nil))
	}
	return out, nil
}

func newHash(alg string) hash.Hash {
	switch alg {
	case SHA1:
		return sha1.New() // #nosec G401
	case SHA256:
		return sha256.New()
	case MD5:
		return md5.New() // #nosec G401
	case Blake2b:
		h, _ := blake2b.New256(nil)
		return h
	}
	panic("manifest: unknown algorithm " + alg)
}

// relPath returns file relative to root with forward slashes. A trailing
// separator on root never ends up in the result.
func relPath(root, file string) (string, error) {
	if root == "" {
		return filepath.ToSlash(filepath.Base(file)), nil
	}
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(file))
	if err != nil {
		return "", fmt.Errorf("failed to relativize %s: %w", file, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("payload file %s is outside %s", file, root)
	}
	return rel, nil
}
