package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/auditflow/auditflow/infrastructure/service/password"
	"github.com/auditflow/auditflow/internal/adapter/persistence"
	"github.com/auditflow/auditflow/internal/config"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/usecase"
)

// Creates the first account of an installation. With -org a new organization
// is created together with its head of audit, otherwise a system admin.
func main() {
	email := flag.String("email", "admin@auditflow.local", "login email")
	userPassword := flag.String("password", "", "login password")
	name := flag.String("name", "Administrator", "display name")
	orgName := flag.String("org", "", "create this organization and make the user its head of audit")
	flag.Parse()

	if *userPassword == "" {
		log.Fatal("-password is required")
	}

	_ = godotenv.Load()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	admin := usecase.NewAdminUseCase(
		persistence.NewPostgresTransactor(db),
		persistence.NewPostgresOrganizationRepository(db),
		persistence.NewPostgresUserRepository(db),
		persistence.NewPostgresAuditeeRepository(db),
		password.NewBcryptPasswordService(cfg.Security.BcryptCost),
		nil,
		usecase.WorkflowSettings{},
	)

	// bootstrap runs with system admin rights and no acting user
	rc := domain.NewRequestContext(domain.Principal{Role: domain.RoleSystemAdmin}, time.Now())

	req := usecase.CreateUserRequest{
		Name:     *name,
		Email:    *email,
		Password: *userPassword,
		Role:     domain.RoleSystemAdmin,
	}
	if *orgName != "" {
		org, err := admin.CreateOrganization(ctx, rc, usecase.CreateOrganizationRequest{Name: *orgName})
		if err != nil {
			log.Fatalf("Failed to create organization: %v", err)
		}
		fmt.Printf("Organization created: id=%d name=%s\n", org.ID, org.Name)
		req.Role = domain.RoleHeadOfAudit
		req.OrganizationID = &org.ID
	}

	user, err := admin.CreateUser(ctx, rc, req)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("User created: id=%d email=%s role=%s\n", user.ID, user.Email, user.Role)
}
