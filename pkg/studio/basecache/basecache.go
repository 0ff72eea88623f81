/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package basecache keeps local clones of marketplace base repositories so
// container initialization copies files instead of hitting the remote on
// every project. Cache entries are plain directory trees; the .git
// directory is stripped after clone.
package basecache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// Cache is a directory of pre-cloned base repositories keyed by base
// slug, backed by a shared named volume so throwaway install containers
// can mount it.
type Cache struct {
	root         string
	volume       string
	installImage string
	gitTimeout   time.Duration
}

func New(root, volume, installImage string, gitTimeout time.Duration) *Cache {
	return &Cache{root: root, volume: volume, installImage: installImage, gitTimeout: gitTimeout}
}

// Path is the cache directory of a base.
func (c *Cache) Path(baseSlug string) string {
	return filepath.Join(c.root, baseSlug)
}

// Has reports whether a base is cached.
func (c *Cache) Has(baseSlug string) bool {
	entries, err := os.ReadDir(c.Path(baseSlug))
	return err == nil && len(entries) > 0
}

// Warm clones every missing base into the cache. Individual failures are
// logged and skipped; a cold entry falls back to a direct clone at
// initialization time.
func (c *Cache) Warm(ctx context.Context, bases []*model.MarketplaceBase) error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return errors.Wrap(errors.Transient, err, "creating base cache root")
	}
	for _, base := range bases {
		if c.Has(base.Slug) {
			continue
		}
		if err := c.clone(ctx, base, c.Path(base.Slug)); err != nil {
			log.Entry(ctx).Warnf("warming base %s: %v", base.Slug, err)
			_ = os.RemoveAll(c.Path(base.Slug))
			continue
		}
		// A failed install leaves a usable clone; container startup
		// installs what is missing.
		if err := c.install(ctx, base.Slug); err != nil {
			log.Entry(ctx).Warnf("installing dependencies for base %s: %v", base.Slug, err)
		}
		log.Entry(ctx).Infof("cached base %s", base.Slug)
	}
	return nil
}

// Seed materializes a base into dst: from the cache when warm, straight
// from the remote otherwise.
func (c *Cache) Seed(ctx context.Context, base *model.MarketplaceBase, dst string) error {
	if c.Has(base.Slug) {
		return CopyTree(c.Path(base.Slug), dst)
	}
	return c.clone(ctx, base, dst)
}

// clone makes a shallow single-branch clone and strips .git so the tree
// becomes the user's own, unversioned starting point.
func (c *Cache) clone(ctx context.Context, base *model.MarketplaceBase, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, c.gitTimeout)
	defer cancel()

	opts := &git.CloneOptions{
		URL:          base.GitRepoURL,
		Depth:        1,
		SingleBranch: true,
	}
	if base.DefaultBranch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(base.DefaultBranch)
	}
	if _, err := git.PlainCloneContext(ctx, dst, false, opts); err != nil {
		return errors.Wrap(errors.Transient, err, "cloning base %s from %s", base.Slug, base.GitRepoURL)
	}
	if err := os.RemoveAll(filepath.Join(dst, ".git")); err != nil {
		return errors.Wrap(errors.Transient, err, "stripping .git from base %s", base.Slug)
	}
	return nil
}

// CloneRepo materializes an arbitrary git repository into dst, for
// projects initialized from a user-supplied URL rather than a base.
func CloneRepo(ctx context.Context, repoURL, branch, dst string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &git.CloneOptions{URL: repoURL, Depth: 1, SingleBranch: true}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}
	if _, err := git.PlainCloneContext(ctx, dst, false, opts); err != nil {
		return errors.Wrap(errors.Transient, err, "cloning %s", repoURL)
	}
	return os.RemoveAll(filepath.Join(dst, ".git"))
}

// CopyTree copies a directory tree, preserving file modes. Symlinks are
// skipped: base repositories have no business containing them and copying
// them could point outside the project directory.
func CopyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			return nil
		case info.IsDir():
			return os.MkdirAll(target, info.Mode().Perm())
		case !info.Mode().IsRegular():
			return nil
		}

		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
		if err != nil {
			return err
		}
		defer out.Close()

		_, err = io.Copy(out, in)
		return err
	})
}
