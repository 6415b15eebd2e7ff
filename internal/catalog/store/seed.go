package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"qualtrack/internal/catalog/models"
	id "qualtrack/pkg/domain"
	"qualtrack/pkg/platform/sentinel"
)

// Creator is the write side used by SeedDefaults.
type Creator interface {
	Create(ctx context.Context, d *models.Definition) error
}

// Seed ids are fixed so repeated boots against the same database are idempotent.
var (
	categoryPersonal = models.Category{ID: id.CategoryID(uuid.MustParse("6c1f7c0e-3d5a-4a8e-9b1d-000000000001")), Name: "Personal details"}
	categorySafety   = models.Category{ID: id.CategoryID(uuid.MustParse("6c1f7c0e-3d5a-4a8e-9b1d-000000000002")), Name: "Safety"}
	categorySkills   = models.Category{ID: id.CategoryID(uuid.MustParse("6c1f7c0e-3d5a-4a8e-9b1d-000000000003")), Name: "Skills"}
)

// DefaultDefinitions is the starter catalog loaded on first boot.
func DefaultDefinitions() []*models.Definition {
	def := func(suffix, name, description string, cat models.Category, shape models.Shape) *models.Definition {
		return &models.Definition{
			ID:          id.DefinitionID(uuid.MustParse("9a0b8e2c-51f4-4c7d-8e6a-0000000000" + suffix)),
			Name:        name,
			Description: description,
			Category:    cat,
			Shape:       shape,
		}
	}
	return []*models.Definition{
		def("01", "National Insurance number", "", categoryPersonal, models.ShapePersonalDetail),
		def("02", "Driving licence", "Full UK driving licence", categoryPersonal, models.ShapePersonalDetail),
		def("03", "First Aid at Work", "Three-day first aid certificate", categorySafety, models.ShapeCertification),
		def("04", "Working at Height", "", categorySafety, models.ShapeCertification),
		def("05", "Confined Space Entry", "", categorySafety, models.ShapeCertification),
		def("06", "Years of experience", "", categorySkills, models.ShapeFreeValue),
	}
}

// SeedDefaults inserts DefaultDefinitions, skipping any that already exist.
func SeedDefaults(ctx context.Context, s Creator) error {
	for _, d := range DefaultDefinitions() {
		if err := s.Create(ctx, d); err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
			return err
		}
	}
	return nil
}
