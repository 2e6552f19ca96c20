package recognizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/kozaktomas/presence-guard/internal/match"
)

// EnrolledIdentity is one authorized person: a name plus every reference
// encoding derived from their enrollment images. Immutable for the
// process lifetime; re-enrollment requires a restart.
type EnrolledIdentity struct {
	Name      string
	Encodings [][]float32
}

// EncodingCache lets enrollment loading skip re-encoding images that
// were already processed on a previous run. Keys are content hashes, so
// a replaced photo under the same filename re-encodes.
type EncodingCache interface {
	Get(ctx context.Context, fileHash string) ([]float32, bool, error)
	Put(ctx context.Context, fileHash, identity string, encoding []float32) error
}

// LoadOptions tweaks enrollment loading.
type LoadOptions struct {
	Cache EncodingCache // optional
	// OnProgress is called once per file after it is processed, with the
	// number of files finished so far. Optional, for CLI progress bars.
	OnProgress func(file string, done, total int)
}

// LoadEnrollment reads every image in the enrollment directory, encodes
// the face in each, and groups encodings by identity (derived from the
// filename). Images with no detectable face are skipped with a warning.
// Returns ErrEnrollmentEmpty when nothing usable was loaded.
func LoadEnrollment(ctx context.Context, provider Provider, dir string, opts LoadOptions) ([]EnrolledIdentity, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("enrollment dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("enrollment path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading enrollment dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	byName := make(map[string][][]float32)
	loaded := 0
	for i, file := range files {
		encoding, err := loadEncoding(ctx, provider, file, opts.Cache)
		if err != nil {
			slog.Warn("skipping enrollment image", "file", filepath.Base(file), "error", err)
		} else {
			name := match.IdentityFromFilename(file)
			byName[name] = append(byName[name], encoding)
			loaded++
			slog.Info("loaded enrollment face", "file", filepath.Base(file), "identity", name)
		}

		// exactly once per file, with the number of files finished so far
		if opts.OnProgress != nil {
			opts.OnProgress(file, i+1, len(files))
		}
	}

	if loaded == 0 {
		return nil, fmt.Errorf("%w: directory %s has no images with a detectable face", ErrEnrollmentEmpty, dir)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	identities := make([]EnrolledIdentity, 0, len(names))
	for _, name := range names {
		identities = append(identities, EnrolledIdentity{Name: name, Encodings: byName[name]})
	}
	return identities, nil
}

// loadEncoding returns the encoding for one enrollment image, consulting
// the cache first. When the detector reports multiple faces in a
// reference photo, the one with the highest detection score wins.
func loadEncoding(ctx context.Context, provider Provider, file string, cache EncodingCache) ([]float32, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if cache != nil {
		if enc, ok, err := cache.Get(ctx, hash); err != nil {
			slog.Warn("encoding cache lookup failed", "file", filepath.Base(file), "error", err)
		} else if ok {
			return enc, nil
		}
	}

	normalized, err := normalizeImage(data, maxEnrollImageSize)
	if err != nil {
		return nil, err
	}

	faces, err := provider.Detect(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("no face found in image")
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	if len(best.Encoding) == 0 {
		return nil, fmt.Errorf("detector returned a face without an encoding")
	}

	if cache != nil {
		if err := cache.Put(ctx, hash, match.IdentityFromFilename(file), best.Encoding); err != nil {
			slog.Warn("encoding cache store failed", "file", filepath.Base(file), "error", err)
		}
	}

	return best.Encoding, nil
}
