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

// Command migrate applies the platform catalog schema. Per-tenant schemas
// are bootstrapped by the registry on provision, not here.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openenroll/openenroll/internal/config"
	"github.com/openenroll/openenroll/internal/store/postgres"
)

func main() {
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

	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("catalog schema applied")
}
