package storage

import (
	"fmt"

	"github.com/ashita-ai/bunrui/internal/model"
)

// persistenceErr tags a driver error as a persistence failure so services and
// handlers can classify it with errors.Is(err, model.ErrPersistence).
func persistenceErr(op string, err error) error {
	return fmt.Errorf("storage: %s: %w: %w", op, model.ErrPersistence, err)
}
