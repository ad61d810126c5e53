// Package source resolves caller supplied image references into decoded images.
package source

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/menta2k/plot2dataset/pkg/types"
)

// DefaultNamespace is the path prefix that marks a reference as a local file
const DefaultNamespace = "images/"

const inlinePrefix = "data:"

// Kind is the variant of an image reference
type Kind int

const (
	// KindInline is a data URL carrying the encoded image
	KindInline Kind = iota + 1
	// KindLocal is a path inside the local storage namespace
	KindLocal
	// KindRemote is an http or https URL
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	}
	return "unknown"
}

// Reference is a classified image reference
type Reference struct {
	Kind  Kind
	Value string
}

// Classify decides once which of the three sources a raw reference names.
// namespace is the local prefix; an empty namespace disables local references.
func Classify(raw, namespace string) (Reference, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return Reference{}, fmt.Errorf("%w: no image URL provided", types.ErrInput)
	}

	if strings.HasPrefix(ref, inlinePrefix) {
		return Reference{Kind: KindInline, Value: ref}, nil
	}

	if namespace != "" && strings.HasPrefix(ref, namespace) {
		cleaned := path.Clean(ref)
		if !strings.HasPrefix(cleaned+"/", ensureSlash(namespace)) {
			return Reference{}, fmt.Errorf("%w: path %q escapes %q", types.ErrInput, ref, namespace)
		}
		return Reference{Kind: KindLocal, Value: cleaned}, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", types.ErrInput, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Reference{}, fmt.Errorf("%w: unsupported image reference %q", types.ErrInput, ref)
	}
	return Reference{Kind: KindRemote, Value: ref}, nil
}

func ensureSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
