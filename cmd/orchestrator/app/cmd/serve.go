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

package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TesslateAI/studio-core/pkg/studio/basecache"
	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/factory"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
	"github.com/TesslateAI/studio-core/pkg/studio/reaper"
)

func NewCmdServe(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator: warm the base cache and sweep idle environments until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(out)
		},
	}
}

func serve(out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}
	runtime, err := factory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer runtime.Close()

	// The docker backend seeds workspaces from local clones; warming the
	// cache at boot keeps first project creation off the network.
	if cfg.DeploymentMode == config.ModeDocker {
		if err := warmBaseCache(ctx, cfg, runtime); err != nil {
			log.Entry(ctx).Warnf("warming base cache: %v", err)
		}
	}

	sweep := reaper.New(runtime.Orchestrator, cfg)
	if err := sweep.Start(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "orchestrator running in %s mode\n", cfg.DeploymentMode)
	<-ctx.Done()
	log.Entry(ctx).Infof("shutting down")
	return nil
}

func warmBaseCache(ctx context.Context, cfg *config.Config, runtime *factory.Runtime) error {
	bases, err := runtime.Store.ListActiveBases(ctx)
	if err != nil {
		return err
	}
	return basecache.New(cfg.Docker.BaseCacheRoot, cfg.Docker.BaseCacheVolume, cfg.Docker.DevServerImage, cfg.Timeouts.GitClone).Warm(ctx, bases)
}
