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
	"os"

	"github.com/spf13/cobra"

	"modvault.dev/modvault/pkg/digest"
	"modvault.dev/modvault/pkg/planner"
	"modvault.dev/modvault/pkg/readerpool"
)

// CatCmd streams a single cataloged blob to stdout via the reader pool —
// a thin smoke-test surface for pkg/readerpool.
var CatCmd = &cobra.Command{
	Use:   "cat <digest>",
	Short: "stream a cataloged blob's bytes to stdout, from a local copy or a local VP archive that directly contains it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := digest.Parse(args[0])
		if err != nil {
			return err
		}

		_, cat, err := openCatalog()
		if err != nil {
			return err
		}
		defer cat.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool := readerpool.New(planner.NewCatalogResolver(cat), readerpool.DefaultInboxSize)
		pool.Start(ctx)

		sink := make(chan readerpool.Chunk)
		if err := pool.Submit(ctx, readerpool.Request{Target: d, Sink: sink}); err != nil {
			return err
		}
		for c := range sink {
			if c.Err != nil {
				return c.Err
			}
			if _, err := os.Stdout.Write(c.Data); err != nil {
				return err
			}
		}
		return nil
	},
}
