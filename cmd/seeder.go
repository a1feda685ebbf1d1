package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm/clause"

	"github.com/yatrisafe/tourist-safety/internal/auth"
	authPostgres "github.com/yatrisafe/tourist-safety/internal/auth/postgres"
	rbacDatamodel "github.com/yatrisafe/tourist-safety/internal/core/datamodel/rbac"
	"github.com/yatrisafe/tourist-safety/internal/rbac"
	"github.com/yatrisafe/tourist-safety/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with the role catalog and initial accounts",
	Long:  `Install the default roles and create the initial admin and operator accounts for development and first boot.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		_, gormDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		ctx := context.Background()

		if clearData {
			fmt.Println("clearing existing data")
			for _, table := range []string{"audit_entries", "sessions", "security_states", "credentials", "users", "roles", "permissions"} {
				if err := gormDB.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
		}

		// Mirror the in-code permission catalog into the reporting table.
		for id, entry := range rbac.Catalog {
			record := rbacDatamodel.Permission{
				ID:        id,
				Category:  entry.Category,
				RiskLevel: entry.RiskLevel,
			}
			err := gormDB.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "id"}},
					DoUpdates: clause.AssignmentColumns([]string{"category", "risk_level"}),
				}).
				Create(&record).Error
			if err != nil {
				log.Fatalf("failed to seed permission %s: %v", id, err)
			}
		}
		fmt.Printf("seeded %d catalog permissions\n", len(rbac.Catalog))

		// Role catalog. Upsert so re-running the seed refreshes permission
		// sets without duplicating rows.
		for _, role := range rbac.DefaultRoles() {
			record, err := rbac.ToDataModel(&role)
			if err != nil {
				log.Fatalf("failed to encode role %s: %v", role.Name, err)
			}
			err = gormDB.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "name"}},
					DoUpdates: clause.AssignmentColumns([]string{"display_name", "permissions", "is_system", "is_active"}),
				}).
				Create(record).Error
			if err != nil {
				log.Fatalf("failed to seed role %s: %v", role.Name, err)
			}
			fmt.Println("seeded role:", role.Name)
		}

		hasher, err := auth.NewPasswordHasher(cfg.Security.BCryptCost)
		if err != nil {
			log.Fatalf("failed to init password hasher: %v", err)
		}
		repo := authPostgres.NewAuthRepository(gormDB)

		seedPassword := os.Getenv("SEED_PASSWORD")
		if seedPassword == "" {
			seedPassword = "changeme-dev1"
			fmt.Println("SEED_PASSWORD not set, using the development default")
		}
		hash, err := hasher.Hash(seedPassword)
		if err != nil {
			log.Fatalf("failed to hash seed password: %v", err)
		}

		accounts := []user.User{
			{
				Email:      "admin@yatrisafe.example",
				Name:       "Platform Admin",
				RoleName:   "admin",
				Department: "operations",
				IsActive:   true,
				IsVerified: true,
			},
			{
				Email:      "operator@yatrisafe.example",
				Name:       "Duty Operator",
				RoleName:   "operator",
				Department: "field",
				IsActive:   true,
				IsVerified: true,
			},
		}

		for i := range accounts {
			account := accounts[i]
			existing, err := repo.GetByEmail(ctx, account.Email)
			if err != nil {
				log.Fatalf("failed to check account %s: %v", account.Email, err)
			}
			if existing != nil {
				fmt.Println("account already exists:", account.Email)
				continue
			}
			if err := repo.CreateWithCredential(ctx, &account, hash); err != nil {
				log.Fatalf("failed to seed account %s: %v", account.Email, err)
			}
			fmt.Println("seeded account:", account.Email)
		}

		fmt.Println("seed complete")
	},
}
