package view

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrJamesThe3rd/ledgermatch/internal/category"
)

// View is the interface that all TUI screens implement.
type View interface {
	tea.Model
	Title() string
	ShortHelp() string
}

type BackMsg struct{}

func Back() tea.Msg {
	return BackMsg{}
}

// Categories resolves category ids to names for display and builds the
// option list of category pickers.
type Categories struct {
	list  []*category.Category
	names map[int64]string
}

func LoadCategories(ctx context.Context, svc *category.Service) (Categories, error) {
	cats, err := svc.List(ctx)
	if err != nil {
		return Categories{}, err
	}

	names := make(map[int64]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	return Categories{list: cats, names: names}, nil
}

// Name returns the category name, or "#id" for an unknown id and "-" for nil.
func (c Categories) Name(id *int64) string {
	if id == nil {
		return "-"
	}

	if name, ok := c.names[*id]; ok {
		return name
	}

	return "#" + formatID(*id)
}

// Active returns the categories a transaction may be assigned to.
func (c Categories) Active() []*category.Category {
	out := make([]*category.Category, 0, len(c.list))

	for _, cat := range c.list {
		if cat.IsActive {
			out = append(out, cat)
		}
	}

	return out
}

const dbTimeout = 5 * time.Second

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
