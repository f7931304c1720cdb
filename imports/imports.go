// Package imports resolves `import "<spec>"` lines (local or remote
// instrument files) into a single merged instrument table, per spec §6's
// "Instrument imports" section.
package imports

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kpax-audio/gbscore/score"
)

// defaultMaxBytes is the content-length cap applied to remote fetches
// unless Options.MaxBytes overrides it.
const defaultMaxBytes = 1 << 20 // 1 MiB

// Fetcher retrieves the raw bytes of a remote instrument file. Injectable
// so the core stays unit-testable with fakes; HTTPFetcher is the real
// net/http-backed implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// HTTPFetcher fetches remote instrument files over plain net/http.
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// Fetch performs a GET against url, refusing bodies beyond maxBytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	if resp.ContentLength > maxBytes {
		return nil, fmt.Errorf("content-length %d exceeds cap %d for %s", resp.ContentLength, maxBytes, url)
	}
	limited := io.LimitReader(resp.Body, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("body exceeds cap %d bytes for %s", maxBytes, url)
	}
	return body, nil
}

// LocalReader reads a local file's content, given its already-validated
// absolute path. Tests substitute a fake; production code should wrap
// os.ReadFile.
type LocalReader func(path string) ([]byte, error)

// Options configures import resolution.
type Options struct {
	// BaseDir is the directory `local:` specs are resolved relative to
	// (normally the directory containing the source file).
	BaseDir string
	// ReadLocal reads a resolved local path. Required for any `local:` spec.
	ReadLocal LocalReader
	// Fetcher retrieves remote (`https://`/`github:`) specs. Required for
	// any remote spec.
	Fetcher Fetcher
	// MaxBytes caps remote fetch size; 0 means defaultMaxBytes.
	MaxBytes int64
	// HTTPSOnly rejects non-https remote URLs outright.
	HTTPSOnly bool
	// AllowAbsoluteLocal permits `local:` specs that are absolute paths
	// instead of rejecting them.
	AllowAbsoluteLocal bool
	// Strict turns duplicate-instrument-name warnings into errors.
	Strict bool
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return defaultMaxBytes
}

// ImportError wraps a failure resolving one import spec.
type ImportError struct {
	Path  string
	Cause error
}

func (e *ImportError) Error() string { return fmt.Sprintf("import %q: %v", e.Path, e.Cause) }
func (e *ImportError) Unwrap() error { return e.Cause }

// Result is the merged outcome of resolving every import in a score.
type Result struct {
	InstrumentNames []string
	Instruments     map[string]*score.Instrument
	Warnings        []score.Warning
}

// Resolve merges sc's own imports into a single instrument table. Local
// declarations in sc itself always win over anything imported; among
// imports, later specs in sc.Imports win over earlier ones (last-wins);
// duplicate names warn, or error when opts.Strict.
func Resolve(ctx context.Context, sc *score.Score, opts Options) (*Result, error) {
	res := &Result{Instruments: map[string]*score.Instrument{}}

	for _, spec := range sc.Imports {
		imported, err := resolveSpec(ctx, spec, opts, []string{})
		if err != nil {
			return nil, err
		}
		if err := mergeInstruments(res, imported, opts, spec); err != nil {
			return nil, err
		}
	}

	own := &score.Score{InstrumentNames: sc.InstrumentNames, Instruments: sc.Instruments}
	if err := mergeInstruments(res, own, opts, "<source>"); err != nil {
		return nil, err
	}

	return res, nil
}

func mergeInstruments(res *Result, from *score.Score, opts Options, spec string) error {
	for _, name := range from.InstrumentNames {
		if _, exists := res.Instruments[name]; exists {
			if opts.Strict {
				return &ImportError{Path: spec, Cause: fmt.Errorf("duplicate instrument %q", name)}
			}
			res.Warnings = append(res.Warnings, score.Warning{
				Message: fmt.Sprintf("instrument %q redefined by %s", name, spec),
			})
		} else {
			res.InstrumentNames = append(res.InstrumentNames, name)
		}
		res.Instruments[name] = from.Instruments[name]
	}
	return nil
}

// resolveSpec loads and parses a single import spec, recursing into its
// own local imports (nested remote imports are forbidden outright). path
// is the chain of specs currently being resolved, used for cycle
// detection.
func resolveSpec(ctx context.Context, spec string, opts Options, path []string) (*score.Score, error) {
	for _, p := range path {
		if p == spec {
			return nil, &ImportError{Path: spec, Cause: fmt.Errorf("import cycle: %s", strings.Join(append(path, spec), " -> "))}
		}
	}
	path = append(path, spec)

	isLocal := strings.HasPrefix(spec, "local:")
	var body []byte
	var err error

	if isLocal {
		body, err = readLocal(spec, opts)
	} else {
		body, err = fetchRemote(ctx, spec, opts)
	}
	if err != nil {
		return nil, &ImportError{Path: spec, Cause: err}
	}

	sc, _, err := score.Parse(string(body))
	if err != nil {
		return nil, &ImportError{Path: spec, Cause: err}
	}
	if err := validateInstrumentsOnly(sc); err != nil {
		return nil, &ImportError{Path: spec, Cause: err}
	}

	if !isLocal && len(sc.Imports) > 0 {
		return nil, &ImportError{Path: spec, Cause: fmt.Errorf("nested imports are forbidden in remote files")}
	}

	if isLocal && len(sc.Imports) > 0 {
		merged := &Result{Instruments: map[string]*score.Instrument{}}
		for _, nested := range sc.Imports {
			nestedScore, err := resolveSpec(ctx, nested, opts, path)
			if err != nil {
				return nil, err
			}
			if err := mergeInstruments(merged, nestedScore, opts, nested); err != nil {
				return nil, err
			}
		}
		own := &score.Score{InstrumentNames: sc.InstrumentNames, Instruments: sc.Instruments}
		if err := mergeInstruments(merged, own, opts, spec); err != nil {
			return nil, err
		}
		return &score.Score{InstrumentNames: merged.InstrumentNames, Instruments: merged.Instruments}, nil
	}

	return sc, nil
}

// validateInstrumentsOnly rejects an imported file that declares anything
// beyond instruments and (for local files) further imports.
func validateInstrumentsOnly(sc *score.Score) error {
	if len(sc.PatternNames) > 0 || len(sc.SequenceNames) > 0 || len(sc.ArrangementNames) > 0 ||
		len(sc.Channels) > 0 || len(sc.EffectPresetNames) > 0 {
		return fmt.Errorf("imported file contains more than instrument declarations")
	}
	return nil
}

func readLocal(spec string, opts Options) ([]byte, error) {
	if opts.ReadLocal == nil {
		return nil, fmt.Errorf("no local reader configured")
	}
	rel := strings.TrimPrefix(spec, "local:")
	if filepath.IsAbs(rel) && !opts.AllowAbsoluteLocal {
		return nil, fmt.Errorf("absolute local import path %q not allowed", rel)
	}

	full := filepath.Join(opts.BaseDir, rel)
	full = filepath.Clean(full)

	baseAbs, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return nil, err
	}
	relFromBase, err := filepath.Rel(baseAbs, fullAbs)
	if err != nil {
		return nil, err
	}
	if relFromBase == ".." || strings.HasPrefix(relFromBase, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("local import %q escapes base directory", rel)
	}

	return opts.ReadLocal(fullAbs)
}

func fetchRemote(ctx context.Context, spec string, opts Options) ([]byte, error) {
	url, err := remoteURL(spec, opts)
	if err != nil {
		return nil, err
	}
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured for remote import %q", spec)
	}
	return opts.Fetcher.Fetch(ctx, url, opts.maxBytes())
}

// remoteURL expands a `github:user/repo/ref/path.ins` spec to its raw-file
// URL and validates scheme requirements for both forms.
func remoteURL(spec string, opts Options) (string, error) {
	switch {
	case strings.HasPrefix(spec, "github:"):
		rest := strings.TrimPrefix(spec, "github:")
		parts := strings.SplitN(rest, "/", 4)
		if len(parts) != 4 {
			return "", fmt.Errorf("malformed github spec %q, want github:user/repo/ref/path", spec)
		}
		user, repo, ref, path := parts[0], parts[1], parts[2], parts[3]
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", user, repo, ref, path), nil
	case strings.HasPrefix(spec, "https://"):
		return spec, nil
	case strings.HasPrefix(spec, "http://"):
		if opts.HTTPSOnly {
			return "", fmt.Errorf("https-only mode rejects %q", spec)
		}
		return spec, nil
	default:
		return "", fmt.Errorf("unrecognized import spec %q", spec)
	}
}
