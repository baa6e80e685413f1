package serializer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/tagstore/tagstore/trees"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported serialization format")
	ErrFileExists        = errors.New("target file already exists")
)

// codec holds what the JSON and YAML serializers have in common.
type codec struct {
	fs        afero.Fs
	factory   trees.Factory
	ext       string
	marshal   func(doc Document) ([]byte, error)
	unmarshal func(data []byte) (*Document, error)
}

// JSONSerializer stores one indented JSON document per file
type JSONSerializer struct {
	codec
}

// YAMLSerializer stores one YAML document per file
type YAMLSerializer struct {
	codec
}

// New picks a serializer by format name. A nil fs means the OS filesystem.
func New(format string, fs afero.Fs, factory trees.Factory) (Serializer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON, "":
		return NewJSONSerializer(fs, factory), nil
	case FormatYAML, "yml":
		return NewYAMLSerializer(fs, factory), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// NewJSONSerializer writes indented JSON documents with a .json extension
func NewJSONSerializer(fs afero.Fs, factory trees.Factory) *JSONSerializer {
	return &JSONSerializer{codec{
		fs:      orOsFs(fs),
		factory: factory,
		ext:     ".json",
		marshal: func(doc Document) ([]byte, error) {
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return nil, err
			}
			return append(data, '\n'), nil
		},
		unmarshal: func(data []byte) (*Document, error) {
			var doc *Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, err
			}
			return doc, nil
		},
	}}
}

// NewYAMLSerializer writes YAML documents with a .yaml extension
func NewYAMLSerializer(fs afero.Fs, factory trees.Factory) *YAMLSerializer {
	return &YAMLSerializer{codec{
		fs:      orOsFs(fs),
		factory: factory,
		ext:     ".yaml",
		marshal: func(doc Document) ([]byte, error) {
			return yaml.Marshal(doc)
		},
		unmarshal: func(data []byte) (*Document, error) {
			var doc *Document
			if err := yaml.Unmarshal(data, &doc); err != nil {
				return nil, err
			}
			return doc, nil
		},
	}}
}

func orOsFs(fs afero.Fs) afero.Fs {
	if fs == nil {
		return afero.NewOsFs()
	}
	return fs
}

func (c *codec) Extension() string {
	return c.ext
}

// Marshal encodes n without touching the filesystem
func (c *codec) Marshal(n *trees.Node) ([]byte, error) {
	doc, err := ToDocument(n)
	if err != nil {
		return nil, fmt.Errorf("failed to convert node: %w", err)
	}
	data, err := c.marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node: %w", err)
	}
	return data, nil
}

// Unmarshal decodes data; (nil, nil) means the data holds no value
func (c *codec) Unmarshal(data []byte) (*trees.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	doc, err := c.unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	return FromDocument(c.factory, *doc), nil
}

func (c *codec) Encode(ctx context.Context, path string, n *trees.Node) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := c.Marshal(n)
	if err != nil {
		return err
	}

	file, err := c.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = c.fs.Remove(path) // best-effort cleanup of the partial file
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		_ = c.fs.Remove(path)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

func (c *codec) Decode(ctx context.Context, path string) (*trees.Node, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Unmarshal(data)
}
