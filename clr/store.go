package clr

import (
	"slices"
	"sync"
)

// assemblyStore holds the images the runtime asks the host for by binding
// identity. An identity stays in the store while any environment that
// loaded it is open.
type assemblyStore struct {
	mu     sync.Mutex
	images map[string]*storedImage
	nextID uint64
}

type storedImage struct {
	id    uint64
	image []byte
	refs  int
}

func newAssemblyStore() *assemblyStore {
	return &assemblyStore{images: make(map[string]*storedImage)}
}

// add stores a copy of image under identity and returns the id the runtime
// uses to tell assemblies apart. Adding a known identity keeps the first
// image.
func (s *assemblyStore) add(identity string, image []byte) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if si, ok := s.images[identity]; ok {
		si.refs++
		return si.id
	}
	s.nextID++
	s.images[identity] = &storedImage{id: s.nextID, image: slices.Clone(image), refs: 1}
	return s.nextID
}

// release drops one reference to identity.
func (s *assemblyStore) release(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, ok := s.images[identity]
	if !ok {
		return
	}
	if si.refs--; si.refs == 0 {
		delete(s.images, identity)
	}
}

// lookup returns the image stored under identity and its id.
func (s *assemblyStore) lookup(identity string) ([]byte, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	si, ok := s.images[identity]
	if !ok {
		return nil, 0, false
	}
	return si.image, si.id, true
}

func (s *assemblyStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images)
}
