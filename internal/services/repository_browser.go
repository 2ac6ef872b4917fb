package services

import (
	"fmt"
	"sort"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// EditType is the kind of change made to a path in a change set
type EditType string

const (
	EditAdd    EditType = "add"
	EditEdit   EditType = "edit"
	EditDelete EditType = "delete"
)

// ChangeSet is one commit as seen by the build changelog
type ChangeSet struct {
	ID           string
	ParentCommit string
	Paths        []ChangePath
}

// ChangePath is one affected path of a ChangeSet
type ChangePath struct {
	Path     string
	Src      string
	Dst      string
	EditType EditType
}

// AffectedPaths returns the paths touched by the change set
func (c *ChangeSet) AffectedPaths() []string {
	paths := make([]string, 0, len(c.Paths))
	for _, p := range c.Paths {
		paths = append(paths, p.Path)
	}
	return paths
}

// ChangeSetFromCommit converts a pushed commit into a change set. parent is
// the id of the preceding commit, or "" when it is not known.
func ChangeSetFromCommit(c models.Commit, parent string) *ChangeSet {
	cs := &ChangeSet{ID: c.ID, ParentCommit: parent}
	add := func(paths []string, edit EditType) {
		for _, p := range paths {
			cs.Paths = append(cs.Paths, ChangePath{Path: p, Src: p, Dst: p, EditType: edit})
		}
	}
	add(c.Added, EditAdd)
	add(c.Modified, EditEdit)
	add(c.Removed, EditDelete)
	return cs
}

// RepositoryBrowser builds links to commits, diffs and files on GitBucket
type RepositoryBrowser struct {
	URL string
}

// NewRepositoryBrowser creates a browser for a repository base URL
func NewRepositoryBrowser(url string) *RepositoryBrowser {
	return &RepositoryBrowser{URL: models.NormalizeBaseURL(url)}
}

// ChangeSetLink returns the commit page of a change set
func (b *RepositoryBrowser) ChangeSetLink(cs *ChangeSet) string {
	return fmt.Sprintf("%scommit/%s", b.URL, cs.ID)
}

// DiffLink returns the diff anchor for an edited path. It returns "" unless
// the path is an edit with both sides known and the commit has a parent.
func (b *RepositoryBrowser) DiffLink(cs *ChangeSet, path ChangePath) string {
	if path.EditType != EditEdit || path.Src == "" || path.Dst == "" || cs.ParentCommit == "" {
		return ""
	}
	return b.diffLink(cs, path)
}

// FileLink returns the diff anchor for deleted paths and the blob page otherwise
func (b *RepositoryBrowser) FileLink(cs *ChangeSet, path ChangePath) string {
	if path.EditType == EditDelete {
		return b.diffLink(cs, path)
	}
	return fmt.Sprintf("%sblob/%s/%s", b.URL, cs.ID, path.Path)
}

func (b *RepositoryBrowser) diffLink(cs *ChangeSet, path ChangePath) string {
	paths := cs.AffectedPaths()
	sort.Strings(paths)
	index := sort.SearchStrings(paths, path.Path)
	return fmt.Sprintf("%s#diff-%d", b.ChangeSetLink(cs), index)
}
