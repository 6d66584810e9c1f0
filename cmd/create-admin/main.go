package main

import (
	"fmt"
	"os"

	"github.com/brunnerh/email-sink/internal/auth"
	jwtpkg "github.com/brunnerh/email-sink/internal/auth/jwt"
	"github.com/brunnerh/email-sink/internal/config"
	"github.com/brunnerh/email-sink/internal/storage"
	sqlstore "github.com/brunnerh/email-sink/internal/storage/sql"
)

// main 创建管理员用户，供首次部署后登录管理 API 使用。
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <email> <username> <password>")
		os.Exit(1)
	}

	email := os.Args[1]
	username := os.Args[2]
	password := os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("错误: 需要配置数据库 (database.type / database.dsn)，内存存储无法持久化管理员")
		os.Exit(1)
	}

	var store storage.Store
	store, err = sqlstore.NewStore(
		cfg.Database.Type,
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
		cfg.Database.ConnMaxLifetime,
	)
	if err != nil {
		fmt.Printf("Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	authService := auth.NewService(store, jwtManager)

	user, err := authService.CreateAdmin(auth.CreateAdminInput{
		Email:    email,
		Username: username,
		Password: password,
	})
	if err != nil {
		fmt.Printf("Failed to create admin: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Admin user created successfully!\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Email:    %s\n", user.Email)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Role:     %s\n", user.Role)
}
