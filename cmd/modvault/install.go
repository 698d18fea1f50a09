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
	"strings"

	"github.com/spf13/cobra"

	"modvault.dev/modvault/pkg/planner"
)

var (
	installPackages []string
	rateLimitKBps   int
)

func init() {
	InstallCmd.Flags().StringSliceVar(&installPackages, "package", nil,
		"install only these packages (default: every required/recommended package)")
	InstallCmd.Flags().IntVar(&rateLimitKBps, "rate-limit-kbps", 0,
		"cap fetch bandwidth in KB/s (0 disables limiting)")
}

// InstallCmd drives one end-to-end install (spec.md §4.7).
var InstallCmd = &cobra.Command{
	Use:   "install <release>@<version> <install-dir>",
	Short: "resolve, acquire, and materialize a release into an install directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, version, err := splitReleaseArg(args[0])
		if err != nil {
			return err
		}
		installDir := args[1]

		cfg, cat, err := openCatalog()
		if err != nil {
			return err
		}
		defer cat.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg.SetFetchRateLimitKBps(rateLimitKBps)
		p := planner.New(ctx, cat, cfg, nil)
		req := planner.Request{
			ReleaseName:    name,
			ReleaseVersion: version,
			PackageNames:   installPackages,
			InstallRoot:    installDir,
		}
		if err := p.Plan(ctx, req); err != nil {
			return err
		}
		fmt.Printf("installed %s-%s to %s\n", name, version, installDir)
		return nil
	},
}

func splitReleaseArg(s string) (name, version string, err error) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return "", "", fmt.Errorf("modvault: release argument %q must be <name>@<version>", s)
	}
	return s[:i], s[i+1:], nil
}
