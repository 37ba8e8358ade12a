// Copyright 2026 The OpenEnroll Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command cleanup removes orphaned tenant storage artifacts: files under
// the storage root with no matching catalog row. Orphans appear when a
// deletion removed the catalog row but the artifact removal failed.
//
// Dry run by default; pass -delete to actually remove files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/openenroll/openenroll/internal/config"
	"github.com/openenroll/openenroll/internal/platform"
	"github.com/openenroll/openenroll/internal/store/postgres"
	"github.com/openenroll/openenroll/internal/tenant"
)

func main() {
	remove := flag.Bool("delete", false, "delete orphaned artifacts instead of listing them")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         cfg.PlatformDB.Host,
		Port:         cfg.PlatformDB.Port,
		User:         cfg.PlatformDB.User,
		Password:     cfg.PlatformDB.Password,
		Database:     cfg.PlatformDB.Database,
		SSLMode:      cfg.PlatformDB.SSLMode,
		MaxOpenConns: cfg.PlatformDB.MaxOpenConns,
		MaxIdleConns: cfg.PlatformDB.MaxIdleConns,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	known := make(map[string]struct{})
	repo := postgres.NewTenantRepository(db)
	for offset := 0; ; offset += 200 {
		var page []*platform.Tenant
		page, err = repo.List(ctx, 200, offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list tenants: %v\n", err)
			os.Exit(1)
		}
		for _, t := range page {
			known[t.ID] = struct{}{}
		}
		if len(page) < 200 {
			break
		}
	}

	ids, err := tenant.ListArtifacts(cfg.TenantStorage.Root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to scan storage root: %v\n", err)
		os.Exit(1)
	}

	orphans := 0
	for _, id := range ids {
		if _, ok := known[id]; ok {
			continue
		}
		orphans++
		path := tenant.ArtifactPath(cfg.TenantStorage.Root, id)
		if !*remove {
			fmt.Printf("orphan: %s\n", path)
			continue
		}
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove %s: %v\n", path, err)
			continue
		}
		fmt.Printf("removed: %s\n", path)
	}

	if orphans == 0 {
		fmt.Println("no orphaned artifacts")
	}
}
