package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/craftbound/portal/internal/app"
	"github.com/craftbound/portal/internal/config"
	"github.com/craftbound/portal/internal/db"
	"github.com/craftbound/portal/internal/models"
	"github.com/craftbound/portal/internal/security"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "portal",
		Short: "Minecraft community portal API server",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (env PORTAL_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.RunServer(ctx, configPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate(cmd.Context(), configPath)
		},
	}

	var adminUsername, adminPassword, adminEmail string
	seedAdminCmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin user and grant the admin role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return seedAdmin(cmd.Context(), configPath, adminUsername, adminPassword, adminEmail)
		},
	}
	seedAdminCmd.Flags().StringVar(&adminUsername, "username", "admin", "Admin username")
	seedAdminCmd.Flags().StringVar(&adminPassword, "password", "", "Admin password (required)")
	seedAdminCmd.Flags().StringVar(&adminEmail, "email", "", "Admin email")

	root.AddCommand(serveCmd, migrateCmd, seedAdminCmd)

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

// seedAdmin provisions an account holding the seeded admin role. Idempotent:
// an existing user of the same name only has the role ensured.
func seedAdmin(ctx context.Context, configPath, username, password, email string) error {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" {
		return errors.New("username is required")
	}
	if password == "" {
		return errors.New("password is required")
	}

	cfg, errLoad := config.Load(config.ResolvePath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		errFind := tx.Where("username = ?", username).First(&user).Error
		switch {
		case errors.Is(errFind, gorm.ErrRecordNotFound):
			hash, errHash := security.HashPassword(password)
			if errHash != nil {
				return errHash
			}
			now := time.Now().UTC()
			user = models.User{
				Username:  username,
				Email:     strings.TrimSpace(email),
				Password:  hash,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if errCreate := tx.Create(&user).Error; errCreate != nil {
				return errCreate
			}
		case errFind != nil:
			return errFind
		}

		var adminRole models.Role
		if errRole := tx.Where("name = ?", "admin").First(&adminRole).Error; errRole != nil {
			return fmt.Errorf("admin role missing: %w", errRole)
		}
		var assignment models.UserRole
		errAssign := tx.Where("user_id = ? AND role_id = ?", user.ID, adminRole.ID).First(&assignment).Error
		if errors.Is(errAssign, gorm.ErrRecordNotFound) {
			if errCreate := tx.Create(&models.UserRole{UserID: user.ID, RoleID: adminRole.ID}).Error; errCreate != nil {
				return errCreate
			}
		} else if errAssign != nil {
			return errAssign
		}

		log.WithField("username", username).Info("admin user ready")
		return nil
	})
}
