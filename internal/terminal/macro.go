package terminal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Placeholders expanded inside text steps
const (
	VarRMA    = "rma"
	VarSerial = "serial"
	VarDate   = "date"
)

// Step is a single key press or a piece of typed text
type Step struct {
	Key  Key    `yaml:"key,omitempty"`
	Text string `yaml:"text,omitempty"`
}

// Macro is an ordered navigation sequence
type Macro []Step

// Macros holds every navigation sequence the session needs
type Macros struct {
	EnterSearch  Macro `yaml:"enter_search"`
	SearchRMA    Macro `yaml:"search_rma"`
	PageForward  Macro `yaml:"page_forward"`
	OpenItem     Macro `yaml:"open_item"`
	Confirm      Macro `yaml:"confirm"`
	EnterDate    Macro `yaml:"enter_date"`
	ReturnToMenu Macro `yaml:"return_to_menu"`
	Cancel       Macro `yaml:"cancel"`
}

func keys(k ...Key) Macro {
	m := make(Macro, len(k))
	for i, key := range k {
		m[i] = Step{Key: key}
	}
	return m
}

func text(t string) Macro {
	return Macro{{Text: t}}
}

func seq(parts ...Macro) Macro {
	var m Macro
	for _, p := range parts {
		m = append(m, p...)
	}
	return m
}

// DefaultMacros returns the sequences for the Failure Analysis screens
func DefaultMacros() Macros {
	return Macros{
		EnterSearch: seq(text("02"), keys(KeyReturn)),
		// The End key clears the user filter before the RMA is typed.
		SearchRMA:   seq(text("I"), keys(KeyDown, KeyDown, KeyEnd, KeyUp), text("{rma}"), keys(KeyReturn)),
		PageForward: keys(KeyPageDown),
		OpenItem: seq(
			keys(KeyReturn), text("p"), keys(KeyReturn), text("r"), keys(KeyReturn),
			text("I"), text("{serial}"), keys(KeyReturn),
			text("s"), keys(KeyDown, KeyDown, KeyDown), text("s"), keys(KeyReturn),
		),
		Confirm:   text("OK"),
		EnterDate: seq(keys(KeyDown, KeyDown, KeyDown, KeyDown, KeyRight, KeyRight, KeyRight, KeyRight), text("{date}")),
		ReturnToMenu: seq(
			keys(KeyReturn), text("p"), keys(KeyReturn), text("r"), keys(KeyReturn),
			text("e"), keys(KeyReturn),
		),
		Cancel: seq(text("e"), keys(KeyReturn)),
	}
}

// LoadMacros reads a YAML file and overlays it on the defaults. Sequences not
// present in the file keep their default.
func LoadMacros(path string) (Macros, error) {
	macros := DefaultMacros()
	if path == "" {
		return macros, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Macros{}, fmt.Errorf("reading macros: %w", err)
	}

	var override Macros
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Macros{}, fmt.Errorf("parsing macros: %w", err)
	}
	if err := override.validate(); err != nil {
		return Macros{}, fmt.Errorf("invalid macros in %s: %w", path, err)
	}

	overlay := func(dst *Macro, src Macro) {
		if len(src) > 0 {
			*dst = src
		}
	}
	overlay(&macros.EnterSearch, override.EnterSearch)
	overlay(&macros.SearchRMA, override.SearchRMA)
	overlay(&macros.PageForward, override.PageForward)
	overlay(&macros.OpenItem, override.OpenItem)
	overlay(&macros.Confirm, override.Confirm)
	overlay(&macros.EnterDate, override.EnterDate)
	overlay(&macros.ReturnToMenu, override.ReturnToMenu)
	overlay(&macros.Cancel, override.Cancel)

	return macros, nil
}

func (m Macros) validate() error {
	named := map[string]Macro{
		"enter_search":   m.EnterSearch,
		"search_rma":     m.SearchRMA,
		"page_forward":   m.PageForward,
		"open_item":      m.OpenItem,
		"confirm":        m.Confirm,
		"enter_date":     m.EnterDate,
		"return_to_menu": m.ReturnToMenu,
		"cancel":         m.Cancel,
	}
	for name, macro := range named {
		for i, step := range macro {
			if (step.Key == "") == (step.Text == "") {
				return fmt.Errorf("%s step %d: exactly one of key or text is required", name, i+1)
			}
		}
	}
	return nil
}

// Run plays a macro on the driver. Text steps have {rma}, {serial} and {date}
// replaced from vars.
func Run(ctx context.Context, d Driver, m Macro, vars map[string]string) error {
	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	replacer := strings.NewReplacer(pairs...)

	for i, step := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if step.Text != "" {
			err = d.TypeText(ctx, replacer.Replace(step.Text))
		} else {
			err = d.SendKeys(ctx, step.Key)
		}
		if err != nil {
			return fmt.Errorf("macro step %d: %w", i+1, err)
		}
	}
	return nil
}
