package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrImageNotFound is returned when no image record matches the requested name.
var ErrImageNotFound = errors.New("image not found")

const defaultTag = "latest"

// Image is a deployable runtime image record.
type Image struct {
	// Name is the logical runtime name robots declare (e.g. "shell").
	Name string `yaml:"name" json:"name"`
	// ContainerReference is the repository part of the image, without tag.
	ContainerReference string `yaml:"containerReference" json:"containerReference"`
	// Version is the image tag; empty means "latest".
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// Reference returns the full container image reference.
func (i Image) Reference() string {
	tag := strings.TrimSpace(i.Version)
	if tag == "" {
		tag = defaultTag
	}
	return fmt.Sprintf("%s:%s", i.ContainerReference, tag)
}

// Finder resolves a runtime name to a concrete image.
type Finder interface {
	FindImage(ctx context.Context, name string) (Image, error)
}

// Lister is implemented by catalogs that can enumerate their images.
type Lister interface {
	ListImages(ctx context.Context) ([]Image, error)
}

// DefaultImages mirrors the runner packages the harbor ships with.
func DefaultImages() []Image {
	return []Image{
		{Name: "shell", ContainerReference: "roboharbor/runner-shell", Version: "1.0.9"},
		{Name: "node", ContainerReference: "roboharbor/runner-node", Version: "1.0.5"},
		{Name: "python", ContainerReference: "roboharbor/runner-python", Version: "1.0.8"},
		{Name: "validate-robot", ContainerReference: "roboharbor/validate-robot", Version: "latest"},
	}
}

// Memory is an in-process catalog.
type Memory struct {
	mu     sync.RWMutex
	images map[string]Image
}

// NewMemory creates a catalog holding images. Later duplicates win.
func NewMemory(images ...Image) *Memory {
	m := &Memory{images: make(map[string]Image, len(images))}
	m.Replace(images)
	return m
}

// Replace swaps the full image set.
func (m *Memory) Replace(images []Image) {
	next := make(map[string]Image, len(images))
	for _, img := range images {
		next[img.Name] = img
	}
	m.mu.Lock()
	m.images = next
	m.mu.Unlock()
}

// FindImage implements Finder.
func (m *Memory) FindImage(_ context.Context, name string) (Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[name]
	if !ok {
		return Image{}, fmt.Errorf("%w: %s", ErrImageNotFound, name)
	}
	return img, nil
}

// ListImages implements Lister.
func (m *Memory) ListImages(_ context.Context) ([]Image, error) {
	m.mu.RLock()
	out := make([]Image, 0, len(m.images))
	for _, img := range m.images {
		out = append(out, img)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func validateImages(images []Image) error {
	seen := make(map[string]bool, len(images))
	for i, img := range images {
		if strings.TrimSpace(img.Name) == "" {
			return fmt.Errorf("image %d: name is required", i)
		}
		if strings.TrimSpace(img.ContainerReference) == "" {
			return fmt.Errorf("image %s: containerReference is required", img.Name)
		}
		if seen[img.Name] {
			return fmt.Errorf("image %s: duplicate name", img.Name)
		}
		seen[img.Name] = true
	}
	return nil
}
