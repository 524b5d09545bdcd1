package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/auditflow/auditflow/infrastructure/service/password"
	"github.com/auditflow/auditflow/infrastructure/service/schema"
	"github.com/auditflow/auditflow/internal/adapter/persistence"
	"github.com/auditflow/auditflow/internal/config"
	"github.com/auditflow/auditflow/internal/domain"
	"github.com/auditflow/auditflow/internal/usecase"
)

type fixture struct {
	Organization  string            `yaml:"organization"`
	Head          userFixture       `yaml:"head_of_audit"`
	Users         []userFixture     `yaml:"users"`
	Auditees      []auditeeFixture  `yaml:"auditees"`
	WorkingPapers []templateFixture `yaml:"working_papers"`
}

type userFixture struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type auditeeFixture struct {
	Name        string            `yaml:"name"`
	Email       string            `yaml:"email"`
	Password    string            `yaml:"password"`
	Departments []string          `yaml:"departments"`
	Universe    []universeFixture `yaml:"universe"`
}

type universeFixture struct {
	Department     string `yaml:"department"`
	AuditArea      string `yaml:"audit_area"`
	Process        string `yaml:"process"`
	InherentRisk   string `yaml:"inherent_risk"`
	ControlMeasure string `yaml:"control_measure"`
	AuditProcedure string `yaml:"audit_procedure"`
}

type templateFixture struct {
	Name           string          `yaml:"name"`
	AllowRowInsert bool            `yaml:"allow_row_insert"`
	Columns        []columnFixture `yaml:"columns"`
}

type columnFixture struct {
	Name    string   `yaml:"name"`
	Type    string   `yaml:"type"`
	Options []string `yaml:"options"`
	Formula string   `yaml:"formula"`
}

func parseFixture(r io.Reader) (*fixture, error) {
	var f fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode fixture: %w", err)
	}
	if f.Organization == "" {
		return nil, fmt.Errorf("fixture has no organization")
	}
	if f.Head.Email == "" {
		return nil, fmt.Errorf("fixture has no head_of_audit")
	}
	return &f, nil
}

// columns numbers the template columns in fixture order
func (t templateFixture) columns() []domain.Column {
	cols := make([]domain.Column, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = domain.Column{
			Name:    c.Name,
			Type:    domain.ColumnType(c.Type),
			Order:   i,
			Options: c.Options,
			Formula: c.Formula,
		}
	}
	return cols
}

func main() {
	path := flag.String("file", "cmd/seed/demo.yaml", "fixture file")
	flag.Parse()

	_ = godotenv.Load()
	ctx := context.Background()

	file, err := os.Open(*path)
	if err != nil {
		log.Fatalf("failed to open fixture: %v", err)
	}
	f, err := parseFixture(file)
	file.Close()
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseURL())
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping db: %v", err)
	}

	tx := persistence.NewPostgresTransactor(db)
	auditeeRepo := persistence.NewPostgresAuditeeRepository(db)
	admin := usecase.NewAdminUseCase(
		tx,
		persistence.NewPostgresOrganizationRepository(db),
		persistence.NewPostgresUserRepository(db),
		auditeeRepo,
		password.NewBcryptPasswordService(cfg.Security.BcryptCost),
		nil,
		usecase.WorkflowSettings{},
	)
	universe := usecase.NewUniverseUseCase(persistence.NewPostgresUniverseRepository(db), auditeeRepo)
	templates := usecase.NewWorkingPaperUseCase(tx, persistence.NewPostgresWorkingPaperRepository(db), schema.NewRowValidator())

	if err := seed(ctx, f, admin, universe, templates); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}
}

func seed(ctx context.Context, f *fixture, admin *usecase.AdminUseCase, universe *usecase.UniverseUseCase, templates *usecase.WorkingPaperUseCase) error {
	now := time.Now()
	sys := domain.NewRequestContext(domain.Principal{Role: domain.RoleSystemAdmin}, now)

	org, err := admin.CreateOrganization(ctx, sys, usecase.CreateOrganizationRequest{Name: f.Organization})
	if err != nil {
		return err
	}
	head, err := admin.CreateUser(ctx, sys, usecase.CreateUserRequest{
		OrganizationID: &org.ID,
		Name:           f.Head.Name,
		Email:          f.Head.Email,
		Password:       f.Head.Password,
		Role:           domain.RoleHeadOfAudit,
	})
	if err != nil {
		return fmt.Errorf("head of audit: %w", err)
	}
	fmt.Printf("Seeded organization %q (id=%d), head of audit %s\n", org.Name, org.ID, head.Email)

	rc := domain.NewRequestContext(domain.Principal{
		UserID:         head.ID,
		Role:           domain.RoleHeadOfAudit,
		OrganizationID: org.ID,
	}, now)

	for _, u := range f.Users {
		user, err := admin.CreateUser(ctx, rc, usecase.CreateUserRequest{
			Name:     u.Name,
			Email:    u.Email,
			Password: u.Password,
			Role:     domain.Role(u.Role),
		})
		if err != nil {
			return fmt.Errorf("user %s: %w", u.Email, err)
		}
		fmt.Printf("Seeded user %s role=%s\n", user.Email, user.Role)
	}

	for _, a := range f.Auditees {
		auditee, err := admin.CreateAuditee(ctx, rc, usecase.CreateAuditeeRequest{
			Name:        a.Name,
			Email:       a.Email,
			Departments: a.Departments,
			Password:    a.Password,
		})
		if err != nil {
			return fmt.Errorf("auditee %s: %w", a.Name, err)
		}
		for _, item := range a.Universe {
			if _, err := universe.Create(ctx, rc, usecase.UniverseItemRequest{
				AuditeeID:      auditee.ID,
				Department:     item.Department,
				AuditArea:      item.AuditArea,
				Process:        item.Process,
				InherentRisk:   item.InherentRisk,
				ControlMeasure: item.ControlMeasure,
				AuditProcedure: item.AuditProcedure,
			}); err != nil {
				return fmt.Errorf("universe item %s: %w", item.AuditArea, err)
			}
		}
		fmt.Printf("Seeded auditee %s with %d universe items\n", auditee.Name, len(a.Universe))
	}

	for _, t := range f.WorkingPapers {
		tpl, err := templates.CreateTemplate(ctx, rc, usecase.TemplateRequest{
			Name:           t.Name,
			AllowRowInsert: t.AllowRowInsert,
			Columns:        t.columns(),
		})
		if err != nil {
			return fmt.Errorf("working paper %s: %w", t.Name, err)
		}
		fmt.Printf("Seeded working paper %s (id=%d)\n", tpl.Name, tpl.ID)
	}
	return nil
}
