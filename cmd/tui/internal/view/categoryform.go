package view

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
)

// categoryForm asks for a category and optional notes. Its bindings live
// on the heap so they survive bubbletea's value-copied models.
type categoryForm struct {
	CategoryID int64
	Notes      string
	form       *huh.Form
}

func newCategoryForm(cats Categories, preselect *int64) *categoryForm {
	f := &categoryForm{}
	if preselect != nil {
		f.CategoryID = *preselect
	}

	options := make([]huh.Option[int64], 0, len(cats.Active()))
	for _, c := range cats.Active() {
		options = append(options, huh.NewOption(c.Name, c.ID))
	}

	f.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int64]().
				Key("category").
				Title("Category").
				Options(options...).
				Height(8).
				Value(&f.CategoryID).
				Validate(func(id int64) error {
					if id <= 0 {
						return errors.New("pick a category")
					}
					return nil
				}),

			huh.NewInput().
				Key("notes").
				Title("Notes (optional)").
				Placeholder("kept on the learned rule").
				Value(&f.Notes),
		),
	).WithWidth(50).WithShowHelp(false)

	return f
}

func (f *categoryForm) Init() tea.Cmd {
	return f.form.Init()
}

// Update forwards msg to the form and reports whether it was submitted.
func (f *categoryForm) Update(msg tea.Msg) (bool, tea.Cmd) {
	model, cmd := f.form.Update(msg)
	if form, ok := model.(*huh.Form); ok {
		f.form = form
	}

	return f.form.State == huh.StateCompleted, cmd
}

func (f *categoryForm) View() string {
	return f.form.View()
}
