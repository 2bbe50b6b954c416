package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hanpama/modgraph/internal/module"
)

// ErrBareSpecifier indicates a bare specifier with no import map entry.
var ErrBareSpecifier = errors.New("source: bare specifier not mapped")

// ResolverOptions configures a Resolver.
//
// Defaults:
// - Extensions: .js, .mjs
// - IndexFiles: index.js, index.mjs
//
// Aliases is an import map. A key ending in "/" maps every specifier with
// that prefix; other keys map the exact specifier. The longest key wins.
type ResolverOptions struct {
	Extensions []string
	IndexFiles []string
	Aliases    map[string]string
}

type ResolverOption func(*ResolverOptions)

func defaultResolverOptions() *ResolverOptions {
	return &ResolverOptions{
		Extensions: []string{".js", ".mjs"},
		IndexFiles: []string{"index.js", "index.mjs"},
	}
}

func WithExtensions(exts ...string) ResolverOption {
	return func(o *ResolverOptions) { o.Extensions = exts }
}
func WithIndexFiles(names ...string) ResolverOption {
	return func(o *ResolverOptions) { o.IndexFiles = names }
}
func WithAliases(m map[string]string) ResolverOption {
	return func(o *ResolverOptions) { o.Aliases = m }
}

// Resolver maps specifiers to root-relative paths that exist in a Provider.
// Relative specifiers resolve against the referrer's directory; specifiers
// starting with "/" and entry specifiers resolve against the root.
type Resolver struct {
	provider Provider
	opts     *ResolverOptions
	aliases  []string // keys sorted longest first
}

var _ module.IdentityResolver = (*Resolver)(nil)

func NewResolver(p Provider, opts ...ResolverOption) *Resolver {
	o := defaultResolverOptions()
	for _, f := range opts {
		f(o)
	}
	keys := make([]string, 0, len(o.Aliases))
	for k := range o.Aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &Resolver{provider: p, opts: o, aliases: keys}
}

func (r *Resolver) Resolve(ctx context.Context, specifier string, referrer module.Identity) (module.Identity, error) {
	spec := r.alias(specifier)

	var p string
	switch {
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		base := "."
		if referrer != "" {
			base = path.Dir(string(referrer))
		}
		p = path.Join(base, spec)
	case strings.HasPrefix(spec, "/"):
		p = path.Clean(strings.TrimPrefix(spec, "/"))
	case referrer == "":
		p = path.Clean(spec)
	default:
		return "", fmt.Errorf("%w: %q", ErrBareSpecifier, specifier)
	}
	if p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, specifier)
	}

	for _, c := range r.candidates(p) {
		ok, err := r.provider.Has(ctx, c)
		if err != nil {
			return "", err
		}
		if ok {
			return module.Identity(c), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, specifier)
}

func (r *Resolver) alias(spec string) string {
	for _, k := range r.aliases {
		v := r.opts.Aliases[k]
		if strings.HasSuffix(k, "/") {
			if strings.HasPrefix(spec, k) {
				return v + strings.TrimPrefix(spec, k)
			}
			continue
		}
		if spec == k {
			return v
		}
	}
	return spec
}

func (r *Resolver) candidates(p string) []string {
	out := []string{p}
	for _, ext := range r.opts.Extensions {
		if !strings.HasSuffix(p, ext) {
			out = append(out, p+ext)
		}
	}
	for _, idx := range r.opts.IndexFiles {
		out = append(out, path.Join(p, idx))
	}
	return out
}
