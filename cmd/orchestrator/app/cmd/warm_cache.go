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

	"github.com/spf13/cobra"

	"github.com/TesslateAI/studio-core/pkg/studio/factory"
)

func NewCmdWarmCache(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "warm-cache",
		Short: "Clone every active marketplace base into the local cache and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfiguration()
			if err != nil {
				return err
			}
			runtime, err := factory.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer runtime.Close()
			if err := warmBaseCache(ctx, cfg, runtime); err != nil {
				return err
			}
			fmt.Fprintln(out, "base cache warmed")
			return nil
		},
	}
}
