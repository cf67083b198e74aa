package schema

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/posbridge/pkg/errors"
)

// LoadStaticSchemas loads predefined entity schemas from YAML files in dir.
// Each file declares one entity; the file name is expected to match the
// entity name but the declaration inside the file wins. A missing directory
// yields an empty map, since all schemas may be inferred.
func LoadStaticSchemas(dir string) (map[string]*EntitySchema, error) {
	schemas := make(map[string]*EntitySchema)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return schemas, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read schema directory")
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		s, err := loadStaticSchema(path)
		if err != nil {
			return nil, err
		}
		schemas[s.Entity] = s
	}

	return schemas, nil
}

func loadStaticSchema(path string) (*EntitySchema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the configured schema directory
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read schema file").WithDetail("path", path)
	}

	var s EntitySchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to parse schema file").WithDetail("path", path)
	}

	s.Source = SourceStatic
	if err := s.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "invalid schema file").WithDetail("path", path)
	}

	return &s, nil
}
