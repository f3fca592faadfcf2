package mockapi

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"specimenreview/specimen"
)

//go:embed seed.yaml
var defaultSeed []byte

type seedFile struct {
	Records []specimen.Record `yaml:"records"`
}

// LoadSeed reads the seed records from path, or the embedded default set when
// path is empty. Records without an id receive a random UUID.
func LoadSeed(path string) ([]specimen.Record, error) {
	data := defaultSeed
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("mockapi: read seed file: %w", err)
		}
		data = raw
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]specimen.Record, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("mockapi: decode seed: %w", err)
	}

	records := make([]specimen.Record, 0, len(file.Records))
	for i, rec := range file.Records {
		rec.ID = strings.TrimSpace(rec.ID)
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if strings.TrimSpace(rec.Name) == "" {
			return nil, fmt.Errorf("mockapi: seed record %d: name required", i)
		}
		if rec.Status == "" {
			rec.Status = specimen.StatusPending
		}
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("mockapi: seed record %s: %w %q", rec.ID, specimen.ErrInvalidStatus, rec.Status)
		}
		records = append(records, rec)
	}

	if err := checkUnique(records); err != nil {
		return nil, err
	}
	return records, nil
}
