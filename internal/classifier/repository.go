package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrCategoryNotFound = errors.New("category not found")

// Repository is the database-backed classifier store. Every mutation goes
// through write, which invalidates registered caches once the transaction
// has finished.
type Repository struct {
	db      *gorm.DB
	onWrite []func()
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// OnWrite registers fn to run after every mutation.
func (r *Repository) OnWrite(fn func()) {
	r.onWrite = append(r.onWrite, fn)
}

func (r *Repository) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	defer func() {
		for _, f := range r.onWrite {
			f()
		}
	}()
	return r.db.WithContext(ctx).Transaction(fn)
}

// Load reads the full configuration, including inactive categories.
func (r *Repository) Load(ctx context.Context) (*Config, error) {
	db := r.db.WithContext(ctx)

	var cats []models.ModerationCategory
	if err := db.Preload("Terms").Preload("Patterns").Order("name").Find(&cats).Error; err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	var homophones []models.Homophone
	if err := db.Order("canonical, variant").Find(&homophones).Error; err != nil {
		return nil, fmt.Errorf("failed to load homophones: %w", err)
	}
	var relaxations []models.BoardRelaxation
	if err := db.Order("board_id, category_name").Find(&relaxations).Error; err != nil {
		return nil, fmt.Errorf("failed to load board relaxations: %w", err)
	}

	cfg := &Config{
		Categories:       make([]Category, 0, len(cats)),
		Homophones:       make(map[string][]string),
		BoardRelaxations: make(map[string][]string),
	}
	for _, c := range cats {
		cat := Category{Name: c.Name, Weight: c.Weight, Active: c.IsActive}
		for _, t := range c.Terms {
			cat.Terms = append(cat.Terms, t.Term)
		}
		for _, p := range c.Patterns {
			cat.Patterns = append(cat.Patterns, p.Pattern)
		}
		cfg.Categories = append(cfg.Categories, cat)
	}
	for _, h := range homophones {
		cfg.Homophones[h.Canonical] = append(cfg.Homophones[h.Canonical], h.Variant)
	}
	for _, b := range relaxations {
		cfg.BoardRelaxations[b.BoardID] = append(cfg.BoardRelaxations[b.BoardID], b.CategoryName)
	}
	return cfg, nil
}

// Import replaces the whole stored configuration.
func (r *Repository) Import(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return r.write(ctx, func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		for _, m := range []interface{}{
			&models.ModerationTerm{},
			&models.ModerationPattern{},
			&models.ModerationCategory{},
			&models.Homophone{},
			&models.BoardRelaxation{},
		} {
			if err := all.Delete(m).Error; err != nil {
				return err
			}
		}
		for _, cat := range cfg.Categories {
			if err := createCategory(tx, cat); err != nil {
				return err
			}
		}
		if err := insertHomophones(tx, cfg.Homophones); err != nil {
			return err
		}
		boards := make([]string, 0, len(cfg.BoardRelaxations))
		for b := range cfg.BoardRelaxations {
			boards = append(boards, b)
		}
		sort.Strings(boards)
		for _, b := range boards {
			if err := insertRelaxations(tx, b, cfg.BoardRelaxations[b]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertCategory creates a category or replaces its weight, state, terms and
// patterns.
func (r *Repository) UpsertCategory(ctx context.Context, cat Category) error {
	if err := cat.Validate(); err != nil {
		return err
	}
	return r.write(ctx, func(tx *gorm.DB) error {
		var existing models.ModerationCategory
		err := tx.Where("name = ?", cat.Name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return createCategory(tx, cat)
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&existing).Updates(map[string]interface{}{
			"weight":    cat.Weight,
			"is_active": cat.Active,
		}).Error; err != nil {
			return err
		}
		if err := deleteRules(tx, existing.ID); err != nil {
			return err
		}
		return insertRules(tx, existing.ID, cat)
	})
}

// DeleteCategory removes a category with its terms and patterns.
func (r *Repository) DeleteCategory(ctx context.Context, name string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		var existing models.ModerationCategory
		err := tx.Where("name = ?", name).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if err := deleteRules(tx, existing.ID); err != nil {
			return err
		}
		if err := tx.Where("category_name = ?", name).Delete(&models.BoardRelaxation{}).Error; err != nil {
			return err
		}
		return tx.Delete(&existing).Error
	})
}

// SetHomophones replaces the homophone map.
func (r *Repository) SetHomophones(ctx context.Context, homophones map[string][]string) error {
	if err := (&Config{Homophones: homophones}).Validate(); err != nil {
		return err
	}
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Homophone{}).Error; err != nil {
			return err
		}
		return insertHomophones(tx, homophones)
	})
}

// SetBoardRelaxations replaces the categories a board does not enforce.
func (r *Repository) SetBoardRelaxations(ctx context.Context, boardID string, categories []string) error {
	return r.write(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("board_id = ?", boardID).Delete(&models.BoardRelaxation{}).Error; err != nil {
			return err
		}
		return insertRelaxations(tx, boardID, categories)
	})
}

func createCategory(tx *gorm.DB, cat Category) error {
	row := models.ModerationCategory{
		Name:     cat.Name,
		Weight:   cat.Weight,
		IsActive: cat.Active,
	}
	// Select keeps an explicit false from being replaced by the column default.
	if err := tx.Select("ID", "Name", "Weight", "IsActive", "CreatedAt", "UpdatedAt").Create(&row).Error; err != nil {
		return err
	}
	return insertRules(tx, row.ID, cat)
}

func insertRules(tx *gorm.DB, categoryID uuid.UUID, cat Category) error {
	var terms []models.ModerationTerm
	for _, t := range dedupe(cat.Terms) {
		terms = append(terms, models.ModerationTerm{CategoryID: categoryID, Term: t})
	}
	if len(terms) > 0 {
		if err := tx.Create(&terms).Error; err != nil {
			return err
		}
	}
	var patterns []models.ModerationPattern
	for _, p := range dedupe(cat.Patterns) {
		patterns = append(patterns, models.ModerationPattern{CategoryID: categoryID, Pattern: p})
	}
	if len(patterns) > 0 {
		return tx.Create(&patterns).Error
	}
	return nil
}

func deleteRules(tx *gorm.DB, categoryID uuid.UUID) error {
	if err := tx.Where("category_id = ?", categoryID).Delete(&models.ModerationTerm{}).Error; err != nil {
		return err
	}
	return tx.Where("category_id = ?", categoryID).Delete(&models.ModerationPattern{}).Error
}

func insertHomophones(tx *gorm.DB, homophones map[string][]string) error {
	var rows []models.Homophone
	seen := make(map[string]bool)
	canonicals := make([]string, 0, len(homophones))
	for c := range homophones {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		for _, v := range homophones[canonical] {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			rows = append(rows, models.Homophone{Canonical: strings.ToLower(canonical), Variant: v})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func insertRelaxations(tx *gorm.DB, boardID string, categories []string) error {
	var rows []models.BoardRelaxation
	for _, name := range dedupe(categories) {
		rows = append(rows, models.BoardRelaxation{BoardID: boardID, CategoryName: name})
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func dedupe(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
