package filesystem

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	eventlogDomain "github.com/davicafu/ordersim/internal/eventlog/domain"
	sharedEvents "github.com/davicafu/ordersim/internal/shared/domain/events"
)

// JSONDeadLetterStore guarda los registros de la DLQ en un fichero JSON.
// Pensado para desarrollo local: cada escritura reescribe el fichero completo.
type JSONDeadLetterStore struct {
	filePath string
	mu       sync.Mutex
}

func NewJSONDeadLetterStore(filePath string) *JSONDeadLetterStore {
	return &JSONDeadLetterStore{filePath: filePath}
}

// Record añade el registro si su ID no estaba ya en el fichero.
func (s *JSONDeadLetterStore) Record(ctx context.Context, rec sharedEvents.DeadLetterRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == rec.ID {
			return nil
		}
	}

	records = append(records, rec)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0644)
}

func (s *JSONDeadLetterStore) List(ctx context.Context, limit int) ([]sharedEvents.DeadLetterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].FailedAt.After(records[j].FailedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// readAll no toma el mutex; lo hace quien la llama.
func (s *JSONDeadLetterStore) readAll() ([]sharedEvents.DeadLetterRecord, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []sharedEvents.DeadLetterRecord{}, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return []sharedEvents.DeadLetterRecord{}, nil
	}

	var records []sharedEvents.DeadLetterRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

var _ eventlogDomain.DeadLetterStore = (*JSONDeadLetterStore)(nil)
