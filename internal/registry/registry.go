// Package registry lazily loads and caches binary-record schemas, JSON
// schemas, and transform expressions by resource name (spec §4.B).
package registry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/linkedin/goavro/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bne-group/eportal-gateway/internal/pipeline"
)

const (
	prefixClasspath = "classpath:"
	prefixEmbed     = "embed:"
	prefixFile      = "file:"
)

// Registry caches parsed schema/transform artifacts for the process lifetime.
type Registry struct {
	root string // filesystem root resources resolve against when unprefixed
	fsys fs.FS  // embedded resources for the classpath:/embed: scheme

	codecs   sync.Map // name -> *codecEntry
	schemas  sync.Map // name -> *schemaEntry
	programs sync.Map // name -> *programEntry
}

type codecEntry struct {
	once  sync.Once
	codec *goavro.Codec
	err   error
}

type schemaEntry struct {
	once   sync.Once
	schema *jsonschema.Schema
	err    error
}

type programEntry struct {
	once    sync.Once
	program *vm.Program
	err     error
}

// New creates a Registry resolving file: resources under root and
// classpath:/embed: resources from fsys (nil disables the embedded scheme).
func New(root string, fsys fs.FS) *Registry {
	return &Registry{root: root, fsys: fsys}
}

// BinarySchema returns the cached Avro-shaped codec for name (an .avsc
// resource), compiling it on first use.
func (r *Registry) BinarySchema(name string) (*goavro.Codec, error) {
	v, _ := r.codecs.LoadOrStore(name, &codecEntry{})
	entry := v.(*codecEntry)
	entry.once.Do(func() {
		raw, err := r.resolveResource(name)
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaNotFound, err)
			return
		}
		codec, err := goavro.NewCodec(raw)
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaInvalid, fmt.Errorf("parse avro schema %s: %w", name, err))
			return
		}
		entry.codec = codec
	})
	return entry.codec, entry.err
}

// JSONSchema returns the cached JSON Schema validator for name (a .json
// resource, or an inline JSON Schema literal if it cannot be resolved as a
// resource).
func (r *Registry) JSONSchema(name string) (*jsonschema.Schema, error) {
	v, _ := r.schemas.LoadOrStore(name, &schemaEntry{})
	entry := v.(*schemaEntry)
	entry.once.Do(func() {
		raw, resolveErr := r.resolveResource(name)
		var source string
		if resolveErr != nil {
			// Fall back to treating name itself as an inline JSON Schema literal.
			source = name
		} else {
			source = raw
		}

		compiler := jsonschema.NewCompiler()
		url := "mem://" + sanitizeResourceURL(name)
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(source))
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaInvalid, fmt.Errorf("parse json schema %s: %w", name, err))
			return
		}
		if err := compiler.AddResource(url, doc); err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaInvalid, fmt.Errorf("add json schema resource %s: %w", name, err))
			return
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaInvalid, fmt.Errorf("compile json schema %s: %w", name, err))
			return
		}
		entry.schema = schema
	})
	return entry.schema, entry.err
}

// TransformProgram returns the cached compiled transform expression for name
// (a .jsonata resource, despite the extension, compiled by expr-lang/expr —
// see SPEC_FULL.md §3).
func (r *Registry) TransformProgram(name string) (*vm.Program, error) {
	v, _ := r.programs.LoadOrStore(name, &programEntry{})
	entry := v.(*programEntry)
	entry.once.Do(func() {
		raw, err := r.resolveResource(name)
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaNotFound, err)
			return
		}
		program, err := expr.Compile(raw, expr.AllowUndefinedVariables())
		if err != nil {
			entry.err = pipeline.Wrap(pipeline.SchemaInvalid, fmt.Errorf("compile transform %s: %w", name, err))
			return
		}
		entry.program = program
	})
	return entry.program, entry.err
}

func sanitizeResourceURL(name string) string {
	return strings.ReplaceAll(name, ":", "/")
}

// resolveResource implements the three-scheme lookup from spec §4.B:
// classpath:/embed: prefix -> embedded resource, file: prefix -> filesystem
// path, otherwise the raw string (handled by callers that accept inline
// literals; resolveResource itself treats a bare name as a file under root).
func (r *Registry) resolveResource(name string) (string, error) {
	switch {
	case strings.HasPrefix(name, prefixClasspath):
		return r.readEmbedded(strings.TrimPrefix(name, prefixClasspath))
	case strings.HasPrefix(name, prefixEmbed):
		return r.readEmbedded(strings.TrimPrefix(name, prefixEmbed))
	case strings.HasPrefix(name, prefixFile):
		return r.readFile(strings.TrimPrefix(name, prefixFile))
	default:
		return r.readFile(name)
	}
}

func (r *Registry) readEmbedded(path string) (string, error) {
	if r.fsys == nil {
		return "", fmt.Errorf("registry: no embedded filesystem configured for %q", path)
	}
	b, err := fs.ReadFile(r.fsys, path)
	if err != nil {
		return "", fmt.Errorf("registry: read embedded resource %q: %w", path, err)
	}
	return string(b), nil
}

func (r *Registry) readFile(path string) (string, error) {
	full := path
	if r.root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(r.root, path)
	}
	b, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("registry: read file resource %q: %w", full, err)
	}
	return string(b), nil
}
