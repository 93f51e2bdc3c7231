package kgorm

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// DialectorOpener returns a gorm.Dialector for a DSN.
type DialectorOpener = func(string) gorm.Dialector

var (
	registryMu sync.RWMutex
	openers    = make(map[string]DialectorOpener)
)

// Register adds a dialect under name. Registering a name again replaces it.
func Register(name string, opener DialectorOpener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	openers[name] = opener
}

// Drivers lists the registered dialect names.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(openers))
	for n := range openers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open connects with the named dialect. A nil config means &gorm.Config{}.
func Open(name, dsn string, config *gorm.Config) (*gorm.DB, error) {
	registryMu.RLock()
	opener, ok := openers[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("kgorm: unknown driver %q", name)
	}
	if config == nil {
		config = &gorm.Config{}
	}
	return gorm.Open(opener(dsn), config)
}

// NewStorage opens the named dialect, migrates every table and returns the
// repository.
func NewStorage(name, dsn string, config *gorm.Config, models ...any) (*Repository, error) {
	db, err := Open(name, dsn, config)
	if err != nil {
		return nil, err
	}
	repo := NewRepository(db)
	if err := repo.AutoMigrate(models...); err != nil {
		return nil, err
	}
	return repo, nil
}
