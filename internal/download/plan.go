package download

import (
	"fmt"

	"github.com/packtdl/packt-dl/internal/models"
	"github.com/packtdl/packt-dl/internal/util/paths"
	"github.com/packtdl/packt-dl/internal/util/sanitize"
	"github.com/packtdl/packt-dl/internal/validation"
)

// PlanNames assigns every catalog item the file name it is stored under.
// Names are normalized with the given replacements and made unique across
// the catalog; an item whose title normalizes to nothing falls back to
// product_<id>.
func PlanNames(items []models.CatalogItem, replacements [][2]string) map[models.ProductID]string {
	named := make([]paths.NamedItem, 0, len(items))
	for _, it := range items {
		name := sanitize.Title(it.Name, replacements)
		if validation.ValidateFilename(name) != nil {
			name = fmt.Sprintf("product_%s", it.ID)
		}
		named = append(named, paths.NamedItem{ID: it.ID.String(), Name: name})
	}

	named, _ = paths.ResolveCollisions(named)

	names := make(map[models.ProductID]string, len(named))
	for _, n := range named {
		names[models.ProductID(n.ID)] = n.Name
	}
	return names
}
