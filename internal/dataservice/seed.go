package dataservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ghaggin/courier/internal/model"
)

var (
	errSeedFileIsDir = errors.New("seed file is dir")
)

// Seed is the fixture file format used to populate an orders database.
type Seed struct {
	Orders []model.Order `json:"orders"`
}

func ReadSeed(path string) (*Seed, error) {
	finfo, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if finfo.IsDir() {
		return nil, errSeedFileIsDir
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	seed := &Seed{}
	if err := json.NewDecoder(f).Decode(seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return seed, nil
}

// Apply inserts the seed orders that are not in s yet and returns how many
// were added. History and status of existing orders are left alone.
func (seed *Seed) Apply(ctx context.Context, s *Store) (int, error) {
	added := 0
	for _, o := range seed.Orders {
		err := s.InsertOrder(ctx, o)
		if isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return added, fmt.Errorf("seed order %s: %w", o.ID, err)
		}
		added++
	}
	return added, nil
}
