package database

import (
	"fmt"

	"github.com/sahilchouksey/course-marketplace-api/model"
	"github.com/sahilchouksey/course-marketplace-api/utils"
	"github.com/sahilchouksey/course-marketplace-api/utils/auth"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB, log *zap.Logger) *Seeder {
	return &Seeder{db: db, log: log}
}

// SeedAll runs all seed functions in foreign key order
func (s *Seeder) SeedAll(adminEmail, adminPassword string) error {
	s.log.Info("Starting database seeding")

	if err := s.SeedAdminUser(adminEmail, adminPassword); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedUniversities(); err != nil {
		return fmt.Errorf("failed to seed universities: %w", err)
	}

	if err := s.SeedCourses(); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	s.log.Info("Database seeding completed")
	return nil
}

// SeedAdminUser creates the default admin user when credentials are supplied
func (s *Seeder) SeedAdminUser(email, password string) error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		s.log.Info("Admin user already exists, skipping")
		return nil
	}

	if email == "" || password == "" {
		s.log.Warn("ADMIN_EMAIL and ADMIN_PASSWORD not set, skipping admin user creation")
		return nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        email,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         model.RoleAdmin,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	s.log.Info("Created admin user", zap.String("email", admin.Email))
	return nil
}

// SeedUniversities creates sample publishing institutions
func (s *Seeder) SeedUniversities() error {
	var count int64
	if err := s.db.Model(&model.University{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		s.log.Info("Universities already exist, skipping")
		return nil
	}

	universities := []model.University{
		{
			Name:     "Dr. A.P.J. Abdul Kalam Technical University",
			Code:     "AKTU",
			Location: "Lucknow, Uttar Pradesh",
			Website:  "https://aktu.ac.in",
			IsActive: true,
		},
		{
			Name:     "Indian Institute of Technology Kanpur",
			Code:     "IITK",
			Location: "Kanpur, Uttar Pradesh",
			Website:  "https://iitk.ac.in",
			IsActive: true,
		},
	}

	if err := s.db.Create(&universities).Error; err != nil {
		return err
	}

	s.log.Info("Created universities", zap.Int("count", len(universities)))
	return nil
}

type seedCourse struct {
	title      string
	price      string
	discounted string
	accessDays int
	free       bool
}

// SeedCourses creates a small priced catalog for the seeded universities
func (s *Seeder) SeedCourses() error {
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		s.log.Info("Courses already exist, skipping")
		return nil
	}

	var universities []model.University
	if err := s.db.Order("id").Find(&universities).Error; err != nil {
		return err
	}

	if len(universities) == 0 {
		return fmt.Errorf("no universities found, seed universities first")
	}

	catalog := [][]seedCourse{
		{
			{title: "Data Structures in Go", price: "1999", discounted: "1499"},
			{title: "Operating Systems Crash Course", price: "999", accessDays: 365},
			{title: "Orientation for New Learners", free: true},
		},
		{
			{title: "Distributed Systems Foundations", price: "2999", discounted: "2499"},
			{title: "Databases from Scratch", price: "1499"},
		},
	}

	var courses []model.Course
	for i, list := range catalog {
		if i >= len(universities) {
			break
		}
		for _, sc := range list {
			course := model.Course{
				UniversityID: universities[i].ID,
				Title:        sc.title,
				Slug:         utils.Slugify(sc.title),
				Description:  sc.title + " offered by " + universities[i].Name,
				IsPaid:       !sc.free,
				AccessDays:   sc.accessDays,
				IsPublished:  true,
			}
			if !sc.free {
				course.Price = decimal.RequireFromString(sc.price)
				if sc.discounted != "" {
					course.DiscountedPrice = decimal.RequireFromString(sc.discounted)
				}
			}
			courses = append(courses, course)
		}
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	s.log.Info("Created courses", zap.Int("count", len(courses)))
	return nil
}
