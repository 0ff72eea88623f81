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

// Package initializer runs the background workflows that populate a new
// project or container with files. Progress is reported through task
// records the API layer polls; cancellation is a hard failure that leaves
// partial resources for the idle reaper.
package initializer

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/TesslateAI/studio-core/pkg/studio/basecache"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	"github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/model"
	"github.com/TesslateAI/studio-core/pkg/studio/orchestrator"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
)

// SourceType selects where a new project's files come from.
type SourceType string

const (
	SourceTemplate = SourceType("template")
	SourceBase     = SourceType("base")
	SourceGitHub   = SourceType("github")
)

// Source describes the origin of a project's initial files.
type Source struct {
	Type SourceType
	// TemplateDir names a directory under the templates root.
	TemplateDir string
	// RepoURL and Branch select a git repository for the github source.
	RepoURL string
	Branch  string
	// Token is the user's OAuth token for private repositories. It is used
	// for the clone only and never written into the project.
	Token string
}

// Initializer seeds project files through the orchestrator's file API, so
// the same workflow serves both backends.
type Initializer struct {
	store         model.Store
	backend       orchestrator.Orchestrator
	timeouts      config.Timeouts
	templatesRoot string
}

func New(store model.Store, backend orchestrator.Orchestrator, cfg *config.Config) *Initializer {
	return &Initializer{
		store:         store,
		backend:       backend,
		timeouts:      cfg.Timeouts,
		templatesRoot: cfg.TemplatesRoot,
	}
}

// progress is best-effort: a failed task update never fails the workflow.
func (i *Initializer) progress(ctx context.Context, taskID string, percent int, message string) {
	if err := i.store.UpdateTask(ctx, taskID, model.TaskRunning, percent, message); err != nil {
		log.Entry(ctx).Debugf("updating task %s: %v", taskID, err)
	}
}

func (i *Initializer) fail(ctx context.Context, taskID string, cause error) error {
	if err := i.store.UpdateTask(ctx, taskID, model.TaskFailed, 0, cause.Error()); err != nil {
		log.Entry(ctx).Warnf("recording task failure: %v", err)
	}
	return cause
}

// InitializeProject populates a fresh project from its source and starts
// it. Every step checks for cancellation; a canceled workflow fails the
// task and leaves whatever was created for the reaper.
func (i *Initializer) InitializeProject(ctx context.Context, taskID string, g *model.Graph, src Source, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Initialize, g.Project.Slug)

	i.progress(ctx, taskID, 10, "preparing project directory")
	if err := i.backend.EnsureProjectDirectory(ctx, g.Project.Slug); err != nil {
		return i.fail(ctx, taskID, err)
	}

	i.progress(ctx, taskID, 25, "fetching project files")
	var err error
	switch src.Type {
	case SourceTemplate:
		err = i.seedFromTemplate(ctx, g, src.TemplateDir, userID)
	case SourceBase:
		err = i.seedFromBases(ctx, g, userID)
	case SourceGitHub:
		err = i.seedFromGitHub(ctx, g, src, userID)
	default:
		err = errors.New(errors.Validation, "unknown project source %q", src.Type)
	}
	if err != nil {
		return i.fail(ctx, taskID, err)
	}
	if err := ctx.Err(); err != nil {
		return i.fail(ctx, taskID, errors.Wrap(errors.Timeout, err, "initialization canceled"))
	}

	i.progress(ctx, taskID, 70, "starting environment")
	if _, err := i.backend.StartProject(ctx, g, userID); err != nil {
		return i.fail(ctx, taskID, err)
	}

	if err := i.store.UpdateTask(ctx, taskID, model.TaskSuccess, 100, "project ready"); err != nil {
		log.Entry(ctx).Warnf("recording task success: %v", err)
	}
	return nil
}

// InitializeContainer seeds a single added container, touching nothing
// else in the project.
func (i *Initializer) InitializeContainer(ctx context.Context, taskID string, g *model.Graph, container *model.Container, userID string) error {
	ctx = log.WithEventContext(ctx, constants.Initialize, g.Project.Slug)

	i.progress(ctx, taskID, 20, "fetching container files")
	if err := i.backend.InitializeContainerFiles(ctx, g, container, userID); err != nil {
		return i.fail(ctx, taskID, err)
	}
	if err := ctx.Err(); err != nil {
		return i.fail(ctx, taskID, errors.Wrap(errors.Timeout, err, "initialization canceled"))
	}

	i.progress(ctx, taskID, 70, "starting container")
	if _, err := i.backend.StartContainer(ctx, g, container, userID); err != nil {
		return i.fail(ctx, taskID, err)
	}

	if err := i.store.UpdateTask(ctx, taskID, model.TaskSuccess, 100, "container ready"); err != nil {
		log.Entry(ctx).Warnf("recording task success: %v", err)
	}
	return nil
}

func (i *Initializer) seedFromTemplate(ctx context.Context, g *model.Graph, templateDir, userID string) error {
	if templateDir == "" || strings.Contains(templateDir, "..") || strings.Contains(templateDir, "/") {
		return errors.New(errors.Validation, "invalid template name %q", templateDir)
	}
	source := filepath.Join(i.templatesRoot, templateDir)
	if _, err := os.Stat(source); err != nil {
		return errors.New(errors.NotFound, "template %q not found", templateDir)
	}
	return i.pushTree(ctx, g.Project.Slug, source, "", userID)
}

func (i *Initializer) seedFromBases(ctx context.Context, g *model.Graph, userID string) error {
	for _, c := range g.Containers {
		if c.Type != model.TypeBase {
			continue
		}
		if err := i.backend.InitializeContainerFiles(ctx, g, c, userID); err != nil {
			return err
		}
	}
	return nil
}

func (i *Initializer) seedFromGitHub(ctx context.Context, g *model.Graph, src Source, userID string) error {
	cloneURL, err := authenticateURL(src.RepoURL, src.Token)
	if err != nil {
		return err
	}
	tmp, err := os.MkdirTemp("", "studio-clone-*")
	if err != nil {
		return errors.Wrap(errors.Transient, err, "creating clone directory")
	}
	defer os.RemoveAll(tmp)

	if err := basecache.CloneRepo(ctx, cloneURL, src.Branch, tmp, i.timeouts.GitClone); err != nil {
		return err
	}
	patchDevServerBinding(ctx, tmp)
	return i.pushTree(ctx, g.Project.Slug, tmp, "", userID)
}

// pushTree copies a local directory into the project through the backend's
// file API, which works identically on both backends.
func (i *Initializer) pushTree(ctx context.Context, projectSlug, localDir, targetPrefix, userID string) error {
	return filepath.Walk(localDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return i.backend.WriteFile(ctx, userID, projectSlug, path.Join(targetPrefix, rel), content)
	})
}

// authenticateURL embeds an OAuth token into an https clone URL.
func authenticateURL(repoURL, token string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", errors.New(errors.Validation, "invalid repository URL %q", repoURL)
	}
	if token != "" {
		u.User = url.UserPassword("oauth2", token)
	}
	return u.String(), nil
}
