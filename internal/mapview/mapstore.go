package mapview

import (
	"sync"

	"go.uber.org/zap"

	"geocat/internal/catalog"
	"geocat/internal/status"
)

// InvalidMapID is returned when a map cannot be created or opened.
const InvalidMapID uint8 = 0

// MapStore keeps the open map views behind small integer handles so
// embedders hold ids instead of pointers. Handle 0 is never issued.
type MapStore struct {
	mu   sync.Mutex
	maps map[uint8]*View
	log  *zap.SugaredLogger
}

// NewMapStore builds an empty registry.
func NewMapStore(log *zap.SugaredLogger) *MapStore {
	return &MapStore{maps: map[uint8]*View{}, log: log}
}

func (ms *MapStore) nextID() (uint8, error) {
	for id := uint8(1); id != 0; id++ {
		if _, taken := ms.maps[id]; !taken {
			return id, nil
		}
	}
	return InvalidMapID, status.Errorf(status.ErrCreateFailed, "too many open maps")
}

// CreateMap registers a fresh map document and returns its handle.
func (ms *MapStore) CreateMap(name, description string) (uint8, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	id, err := ms.nextID()
	if err != nil {
		return InvalidMapID, err
	}
	ms.maps[id] = NewView(NewMap(name, description), ms.log)
	return id, nil
}

// OpenMap reads a map document from disk and returns its handle.
func (ms *MapStore) OpenMap(path string) (uint8, error) {
	m, err := OpenMap(path)
	if err != nil {
		return InvalidMapID, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	id, err := ms.nextID()
	if err != nil {
		return InvalidMapID, err
	}
	ms.maps[id] = NewView(m, ms.log)
	return id, nil
}

// Map returns the view behind a handle, nil when the handle is stale.
func (ms *MapStore) Map(id uint8) *View {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.maps[id]
}

// SaveMap writes the map document behind a handle to path.
func (ms *MapStore) SaveMap(id uint8, path string) error {
	v := ms.Map(id)
	if v == nil {
		return status.Errorf(status.ErrNotFound, "no open map %d", id)
	}
	return v.Map.Save(path)
}

// CloseMap drops a handle. The document is not saved.
func (ms *MapStore) CloseMap(id uint8) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.maps[id]; !ok {
		return status.Errorf(status.ErrNotFound, "no open map %d", id)
	}
	delete(ms.maps, id)
	return nil
}

// MapCount reports the number of open maps.
func (ms *MapStore) MapCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.maps)
}

// OnLowMemory drops cached catalog listings and other reclaimable state.
// Open maps and active edit sessions survive.
func (ms *MapStore) OnLowMemory() {
	if cat := catalog.Instance(); cat != nil {
		cat.FreeResources()
	}
	ms.log.Infow("low memory: caches dropped")
}
