package view

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hanpama/mongoview/internal/model"
	"github.com/hanpama/mongoview/internal/store"
)

// GraphsDir is the directory below a root that holds graph files.
const GraphsDir = "specs"

type GraphMetadata struct {
	Name     string
	FilePath string
}

// Discovery lists graph sources and reads them by view name.
type Discovery interface {
	ListMetadata(ctx context.Context) ([]*GraphMetadata, error)
	ReadGraph(ctx context.Context, name string) (string, error)
}

// FileSystemDiscovery finds *.graphql files below <root>/specs. The view name
// is the file's base name without extension.
type FileSystemDiscovery struct {
	paths map[string]string
	metas map[string]*GraphMetadata
}

func NewFileSystemDiscovery(ctx context.Context, rootDir string) (*FileSystemDiscovery, error) {
	dir := filepath.Join(rootDir, GraphsDir)
	discovery := &FileSystemDiscovery{
		paths: make(map[string]string),
		metas: make(map[string]*GraphMetadata),
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ".graphql" {
			return nil
		}
		relPath, err := filepath.Rel(rootDir, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %q: %w", path, err)
		}
		name := strings.TrimSuffix(d.Name(), ".graphql")
		if prev, dup := discovery.paths[name]; dup {
			return fmt.Errorf("view %q defined by both %q and %q", name, prev, path)
		}
		discovery.paths[name] = path
		discovery.metas[name] = &GraphMetadata{Name: name, FilePath: relPath}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk graphs directory %q: %w", dir, err)
	}
	return discovery, nil
}

// ListMetadata returns the discovered graphs sorted by name.
func (d *FileSystemDiscovery) ListMetadata(ctx context.Context) ([]*GraphMetadata, error) {
	return sortedMetas(d.metas), nil
}

func (d *FileSystemDiscovery) ReadGraph(ctx context.Context, name string) (string, error) {
	fp, ok := d.paths[name]
	if !ok {
		return "", fmt.Errorf("graph %q not found", name)
	}
	content, err := os.ReadFile(fp)
	if err != nil {
		return "", fmt.Errorf("failed to read graph %q: %w", name, err)
	}
	return string(content), nil
}

type InMemoryGraph struct {
	Name    string
	Content string
}

// InMemoryDiscovery serves graphs held in memory.
type InMemoryDiscovery struct {
	metas    map[string]*GraphMetadata
	contents map[string]string
}

func NewInMemoryDiscovery(graphs []InMemoryGraph) *InMemoryDiscovery {
	discovery := &InMemoryDiscovery{
		metas:    make(map[string]*GraphMetadata),
		contents: make(map[string]string),
	}
	for _, g := range graphs {
		discovery.metas[g.Name] = &GraphMetadata{
			Name:     g.Name,
			FilePath: GraphsDir + "/" + g.Name + ".graphql",
		}
		discovery.contents[g.Name] = g.Content
	}
	return discovery
}

func (d *InMemoryDiscovery) ListMetadata(ctx context.Context) ([]*GraphMetadata, error) {
	return sortedMetas(d.metas), nil
}

func (d *InMemoryDiscovery) ReadGraph(ctx context.Context, name string) (string, error) {
	content, ok := d.contents[name]
	if !ok {
		return "", fmt.Errorf("graph %q not found", name)
	}
	return content, nil
}

func sortedMetas(m map[string]*GraphMetadata) []*GraphMetadata {
	out := make([]*GraphMetadata, 0, len(m))
	for _, meta := range m {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build compiles every discovered graph into a View. The first failing graph
// aborts the build.
func Build(ctx context.Context, d Discovery, reg model.Registry, src store.Reader, dst store.Store, opts ...Option) (*Set, error) {
	metas, err := d.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(metas))
	for _, meta := range metas {
		source, err := d.ReadGraph(ctx, meta.Name)
		if err != nil {
			return nil, err
		}
		v, err := New(meta.Name, source, reg, src, dst, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", meta.FilePath, err)
		}
		views = append(views, v)
	}
	return NewSet(views...)
}

// LoadDir is a convenience function that discovers the graphs below rootDir
// and builds their views.
func LoadDir(rootDir string, reg model.Registry, src store.Reader, dst store.Store, opts ...Option) (*Set, error) {
	discovery, err := NewFileSystemDiscovery(context.Background(), rootDir)
	if err != nil {
		return nil, err
	}
	return Build(context.Background(), discovery, reg, src, dst, opts...)
}
