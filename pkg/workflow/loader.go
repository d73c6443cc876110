package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dubaigit/task-mail-sub006/pkg/models"
	"gopkg.in/yaml.v3"
)

var definitionExtensions = []string{".yaml", ".yml", ".json"}

// Decode reads one or more definitions from a YAML stream. JSON documents
// are valid YAML and decode the same way.
func Decode(r io.Reader) ([]*models.Workflow, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	workflows := make([]*models.Workflow, 0, 1)

	for {
		var workflow models.Workflow

		err := decoder.Decode(&workflow)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, nil
}

// LoadFile decodes every definition in a file.
func LoadFile(path string) ([]*models.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	workflows, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return workflows, nil
}

// LoadDir decodes every definition file directly inside dir, in name order.
func LoadDir(dir string) ([]*models.Workflow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	workflows := make([]*models.Workflow, 0)

	for _, entry := range entries {
		if entry.IsDir() || !IsDefinitionFile(entry.Name()) {
			continue
		}

		loaded, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, loaded...)
	}

	return workflows, nil
}

// Load accepts a file or a directory.
func Load(path string) ([]*models.Workflow, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if info.IsDir() {
		return LoadDir(path)
	}

	return LoadFile(path)
}

func IsDefinitionFile(name string) bool {
	return slices.Contains(definitionExtensions, strings.ToLower(filepath.Ext(name)))
}
