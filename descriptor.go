package extbuild

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DescriptorVersion is the only descriptor format version understood.
const DescriptorVersion = 1

// ErrInvalidDescriptor is wrapped by every descriptor validation failure.
var ErrInvalidDescriptor = errors.New("invalid extension descriptor")

type descriptorFile struct {
	Version    int             `yaml:"version"`
	Project    string          `yaml:"project"`
	Extensions []ExtensionSpec `yaml:"extensions"`
}

// Descriptor is one vendored sub-project's build descriptor, loaded in
// isolation.
//
// Every load produces a new value with its own LoadID. Descriptors are never
// cached and share nothing with each other or with the package being
// installed.
type Descriptor struct {
	Module  string    // logical module name, e.g. "ddtrace.vendor.wrapt.setup"
	Path    string    // file the descriptor was read from
	Project string    // project name declared by the file
	LoadID  uuid.UUID // unique per load

	baseDir    string
	extensions []ExtensionSpec
}

// LoadDescriptor reads the descriptor file at path and returns it as an
// independent unit named module. Only that file is read.
func LoadDescriptor(module, path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file descriptorFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor %s: %w", path, err)
	}

	if file.Version != DescriptorVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrInvalidDescriptor, path, file.Version)
	}

	return &Descriptor{
		Module:     module,
		Path:       path,
		Project:    file.Project,
		LoadID:     uuid.New(),
		extensions: file.Extensions,
	}, nil
}

// Extensions returns the extension specs that apply to goos.
//
// Specs restricted to other platforms are left out. Source paths are
// resolved against the descriptor's directory, relative to the project root
// of the Loader that produced it.
func (d *Descriptor) Extensions(goos string) ([]ExtensionSpec, error) {
	specs := make([]ExtensionSpec, 0, len(d.extensions))
	for i := range d.extensions {
		spec := d.extensions[i].clone()

		if spec.Name == "" {
			return nil, fmt.Errorf("%w: %s: extension %d has no name", ErrInvalidDescriptor, d.Path, i)
		}
		if len(spec.Sources) == 0 {
			return nil, fmt.Errorf("%w: %s: extension %s has no sources", ErrInvalidDescriptor, d.Path, spec.Name)
		}
		if len(spec.Platforms) > 0 && !slices.Contains(spec.Platforms, goos) {
			continue
		}

		for j, src := range spec.Sources {
			resolved, err := d.resolve(src)
			if err != nil {
				return nil, fmt.Errorf("%w: extension %s: %w", ErrInvalidDescriptor, spec.Name, err)
			}
			spec.Sources[j] = resolved
		}
		for j, dir := range spec.IncludeDirs {
			resolved, err := d.resolve(dir)
			if err != nil {
				return nil, fmt.Errorf("%w: extension %s: %w", ErrInvalidDescriptor, spec.Name, err)
			}
			spec.IncludeDirs[j] = resolved
		}

		specs = append(specs, spec)
	}
	return specs, nil
}

// resolve maps a descriptor-relative path to a project-relative one.
func (d *Descriptor) resolve(p string) (string, error) {
	if path.IsAbs(p) || filepath.IsAbs(p) {
		return p, nil
	}
	joined := path.Join(d.baseDir, filepath.ToSlash(p))
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", fmt.Errorf("path %s escapes the project root", p)
	}
	return joined, nil
}

// Loader loads descriptors from paths relative to a project root.
type Loader struct {
	Root string
}

// Load loads the descriptor at relPath under the loader root as module.
func (l Loader) Load(module, relPath string) (*Descriptor, error) {
	relPath = filepath.ToSlash(filepath.Clean(filepath.FromSlash(relPath)))
	if path.IsAbs(relPath) || relPath == ".." || strings.HasPrefix(relPath, "../") {
		return nil, fmt.Errorf("%w: %s is not relative to the project root", ErrInvalidDescriptor, relPath)
	}

	d, err := LoadDescriptor(module, filepath.Join(l.Root, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, err
	}
	d.baseDir = path.Dir(relPath)
	return d, nil
}
