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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"modvault.dev/modvault/pkg/catalog"
	"modvault.dev/modvault/pkg/config"
)

var appDirFlag string

func init() {
	RootCmd.PersistentFlags().StringVar(&appDirFlag, "app-dir", "", "override the application directory (default: OS-conventional per-user dir)")
	RootCmd.AddCommand(IngestCmd)
	RootCmd.AddCommand(InstallCmd)
	RootCmd.AddCommand(CatCmd)
}

// RootCmd is the main command for the 'modvault' binary.
var RootCmd = &cobra.Command{
	Use:   "modvault",
	Short: "modvault manages content-addressed game mod installs",
	Long: "modvault resolves and acquires the files a mod or engine build " +
		"needs, reusing whatever is already available locally and fetching " +
		"only the minimum remote content required.",
}

// openCatalog opens the catalog at the effective app directory, creating
// the directory tree on first run.
func openCatalog() (*config.AppConfig, *catalog.Catalog, error) {
	appDir := appDirFlag
	if appDir == "" {
		appDir = config.AppDir()
	}
	cfg := config.New(appDir, appDir)
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, fmt.Errorf("modvault: prepare app dir %s: %w", appDir, err)
	}
	cat, err := catalog.Open(config.CatalogPath(appDir))
	if err != nil {
		return nil, nil, err
	}
	return cfg, cat, nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
