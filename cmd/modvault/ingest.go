/*
Copyright 2026 The Modvault Authors

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

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"modvault.dev/modvault/pkg/config"
	"modvault.dev/modvault/pkg/repoingest"
)

// IngestCmd fetches and imports a repository manifest (spec.md §4.8).
var IngestCmd = &cobra.Command{
	Use:   "ingest <repo-url> [<repo-url>...]",
	Short: "fetch and import one or more repository manifests, tried in order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cat, err := openCatalog()
		if err != nil {
			return err
		}
		defer cat.Close()

		in := repoingest.New(cat, config.RepoCacheDir(cfg.AppDir()), nil)
		answered, err := in.IngestFirst(context.Background(), args)
		if err != nil {
			return err
		}
		fmt.Printf("ingested manifest from %s\n", answered)
		return nil
	},
}
