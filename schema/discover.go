package schema

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Discoverer finds workflows across the three precedence-ordered roots:
// project (highest), user, builtin (lowest). The first match, by source
// priority, wins; Discover and List share the same underlying scan so a
// caller can inspect the full set for diagnostics even after a collision.
type Discoverer struct {
	ProjectDir string
	UserDir    string
	BuiltinDir string
	Opts       LoadOptions
}

// roots returns the three discovery roots in search order.
func (d *Discoverer) roots() []struct {
	dir    string
	source Source
} {
	return []struct {
		dir    string
		source Source
	}{
		{d.ProjectDir, SourceProject},
		{d.UserDir, SourceUser},
		{d.BuiltinDir, SourceBuiltin},
	}
}

// Discover loads the highest-priority workflow named name. It returns
// DiscoveryError if no root contains a matching file.
func (d *Discoverer) Discover(name string) (*WorkflowFile, Source, error) {
	all, err := d.scan()
	if err != nil {
		return nil, "", err
	}
	var best *DiscoveredWorkflow
	var searched []string
	for i := range all {
		dw := all[i]
		searched = append(searched, dw.File.Path)
		if dw.File.Name != name {
			continue
		}
		if best == nil || dw.Source.Priority() > best.Source.Priority() {
			best = &all[i]
		}
	}
	if best == nil {
		return nil, "", &DiscoveryError{Name: name, SearchedPaths: searched}
	}
	return best.File, best.Source, nil
}

// List returns every workflow discovered across all three roots, annotated
// by Source, for diagnostics (including names that collide across sources).
func (d *Discoverer) List() ([]DiscoveredWorkflow, error) {
	return d.scan()
}

func (d *Discoverer) scan() ([]DiscoveredWorkflow, error) {
	var out []DiscoveredWorkflow
	for _, root := range d.roots() {
		if root.dir == "" {
			continue
		}
		matches, err := doublestar.FilepathGlob(filepath.ToSlash(filepath.Join(root.dir, "*.{yaml,yml}")))
		if err != nil {
			return nil, fmt.Errorf("schema: scanning %s: %w", root.dir, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			wf, err := Load(m, d.Opts)
			if err != nil {
				return nil, fmt.Errorf("schema: loading %s: %w", m, err)
			}
			out = append(out, DiscoveredWorkflow{File: wf, Source: root.source})
		}
	}
	return out, nil
}
