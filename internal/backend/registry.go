package backend

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/born-ml/singleshot/internal/errdefs"
)

type entry struct {
	backend Backend
	once    sync.Once
	initErr error
}

var (
	mu         sync.RWMutex
	backends   = make(map[string]*entry)
	extensions = make(map[string]string)
)

// Register makes b available under b.Name() and for files with any of the
// given extensions (".onnx"). It panics if the name or an extension is
// already taken.
func Register(b Backend, exts ...string) {
	mu.Lock()
	defer mu.Unlock()

	name := b.Name()
	if _, ok := backends[name]; ok {
		panic(fmt.Sprintf("backend: backend %q already registered", name))
	}
	for _, ext := range exts {
		ext = normalizeExt(ext)
		if owner, ok := extensions[ext]; ok {
			panic(fmt.Sprintf("backend: extension %q already registered by %q", ext, owner))
		}
	}

	backends[name] = &entry{backend: b}
	for _, ext := range exts {
		extensions[normalizeExt(ext)] = name
	}
}

// Unregister removes a backend and its extensions.
func Unregister(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(backends, name)
	for ext, owner := range extensions {
		if owner == name {
			delete(extensions, ext)
		}
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Lookup returns the initialized backend registered under name.
func Lookup(name string) (Backend, error) {
	mu.RLock()
	e, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, errdefs.NotSupported("backend %q is not registered", name)
	}

	e.once.Do(func() {
		if init, ok := e.backend.(Initializer); ok {
			e.initErr = errdefs.Backend(init.Init())
		}
	})
	if e.initErr != nil {
		return nil, e.initErr
	}
	return e.backend, nil
}

// ForPath returns the backend registered for the extension of path.
func ForPath(path string) (Backend, error) {
	ext := strings.ToLower(filepath.Ext(path))

	mu.RLock()
	name, ok := extensions[ext]
	mu.RUnlock()
	if !ok {
		return nil, errdefs.NotSupported("no backend for %q files", ext)
	}
	return Lookup(name)
}

// Names returns the registered backend names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
