// Package scrape drives a headless browser through the storefront's location
// picker and menu pages and extracts product prices.
package scrape

import "strings"

// LocationSelectors address the store-picker flow.
type LocationSelectors struct {
	SearchInput   string `mapstructure:"search_input" yaml:"search_input"`
	SearchButton  string `mapstructure:"search_button" yaml:"search_button"`
	FirstResult   string `mapstructure:"first_result" yaml:"first_result"`
	ConfirmButton string `mapstructure:"confirm_button" yaml:"confirm_button"`
	CurrentStore  string `mapstructure:"current_store" yaml:"current_store"`
}

// CartSelectors address the add-to-cart verification flow. SizeOption and
// CrustOption are optional configuration steps some storefronts require
// before an item can be added; empty selectors skip the step.
type CartSelectors struct {
	AddButton    string `mapstructure:"add_button" yaml:"add_button"`
	SizeOption   string `mapstructure:"size_option" yaml:"size_option"`
	CrustOption  string `mapstructure:"crust_option" yaml:"crust_option"`
	OpenButton   string `mapstructure:"open_button" yaml:"open_button"`
	Total        string `mapstructure:"total" yaml:"total"`
	RemoveButton string `mapstructure:"remove_button" yaml:"remove_button"`
	Close        string `mapstructure:"close" yaml:"close"`
}

// CategorySelectors address one menu category page. Name holds ordered
// candidate selectors; the first one that yields usable text wins. Expand,
// when set, names collapsed sections that must be clicked open before the
// tiles render.
type CategorySelectors struct {
	Path      string   `mapstructure:"path" yaml:"path"`
	Container string   `mapstructure:"container" yaml:"container"`
	Item      string   `mapstructure:"item" yaml:"item"`
	Expand    string   `mapstructure:"expand" yaml:"expand"`
	Name      []string `mapstructure:"name" yaml:"name"`
	Price     string   `mapstructure:"price" yaml:"price"`
}

// Selectors is the full selector configuration for one storefront.
type Selectors struct {
	Location   LocationSelectors            `mapstructure:"location" yaml:"location"`
	Cart       CartSelectors                `mapstructure:"cart" yaml:"cart"`
	Categories map[string]CategorySelectors `mapstructure:"categories" yaml:"categories"`
	Default    CategorySelectors            `mapstructure:"default" yaml:"default"`
}

// DefaultSelectors matches the storefront markup as shipped. Site redesigns
// are absorbed by overriding these in configuration rather than in code.
func DefaultSelectors() Selectors {
	return Selectors{
		Location: LocationSelectors{
			SearchInput:   `input[data-testid="location-search-input"]`,
			SearchButton:  `button[data-testid="location-search-submit"]`,
			FirstResult:   `[data-testid="location-result"]:first-of-type button`,
			ConfirmButton: `button[data-testid="location-confirm"]`,
			CurrentStore:  `[data-testid="current-store"]`,
		},
		Cart: CartSelectors{
			AddButton:    `[data-testid="menu-item"]:first-of-type button[data-testid="add-to-cart"]`,
			OpenButton:   `button[data-testid="cart-open"]`,
			Total:        `[data-testid="cart-total"]`,
			RemoveButton: `button[data-testid="cart-item-remove"]`,
			Close:        `button[data-testid="cart-close"]`,
		},
		Default: CategorySelectors{
			Container: `[data-testid="menu-grid"]`,
			Item:      `[data-testid="menu-item"]`,
			Name: []string{
				`[data-testid="menu-item-name"]`,
				`h3`,
				`h2`,
			},
			Price: `[data-testid="menu-item-price"]`,
		},
	}
}

// ForCategory resolves the selector set for a menu category, falling back to
// the defaults field by field. The URL path defaults to /menu/<category>.
func (s Selectors) ForCategory(category string) CategorySelectors {
	sel := s.Default
	if override, ok := s.Categories[category]; ok {
		if override.Path != "" {
			sel.Path = override.Path
		}
		if override.Container != "" {
			sel.Container = override.Container
		}
		if override.Item != "" {
			sel.Item = override.Item
		}
		if override.Expand != "" {
			sel.Expand = override.Expand
		}
		if len(override.Name) > 0 {
			sel.Name = override.Name
		}
		if override.Price != "" {
			sel.Price = override.Price
		}
	}
	if sel.Path == "" {
		sel.Path = "/menu/" + strings.TrimPrefix(category, "/")
	}
	return sel
}

// Overlay merges configured selector overrides onto s. Only non-empty fields
// override, so a config file names just the selectors a site redesign broke;
// category overrides merge per category.
func (s Selectors) Overlay(o Selectors) Selectors {
	out := s
	out.Location = overlayLocation(s.Location, o.Location)
	out.Cart = overlayCart(s.Cart, o.Cart)
	out.Default = overlayCategory(s.Default, o.Default)
	if len(o.Categories) > 0 {
		out.Categories = make(map[string]CategorySelectors, len(s.Categories)+len(o.Categories))
		for category, sel := range s.Categories {
			out.Categories[category] = sel
		}
		for category, sel := range o.Categories {
			if base, ok := out.Categories[category]; ok {
				out.Categories[category] = overlayCategory(base, sel)
			} else {
				out.Categories[category] = sel
			}
		}
	}
	return out
}

func overlayLocation(base, o LocationSelectors) LocationSelectors {
	pick(&base.SearchInput, o.SearchInput)
	pick(&base.SearchButton, o.SearchButton)
	pick(&base.FirstResult, o.FirstResult)
	pick(&base.ConfirmButton, o.ConfirmButton)
	pick(&base.CurrentStore, o.CurrentStore)
	return base
}

func overlayCart(base, o CartSelectors) CartSelectors {
	pick(&base.AddButton, o.AddButton)
	pick(&base.SizeOption, o.SizeOption)
	pick(&base.CrustOption, o.CrustOption)
	pick(&base.OpenButton, o.OpenButton)
	pick(&base.Total, o.Total)
	pick(&base.RemoveButton, o.RemoveButton)
	pick(&base.Close, o.Close)
	return base
}

func overlayCategory(base, o CategorySelectors) CategorySelectors {
	pick(&base.Path, o.Path)
	pick(&base.Container, o.Container)
	pick(&base.Item, o.Item)
	pick(&base.Expand, o.Expand)
	if len(o.Name) > 0 {
		base.Name = append([]string(nil), o.Name...)
	}
	pick(&base.Price, o.Price)
	return base
}

func pick(dst *string, override string) {
	if override != "" {
		*dst = override
	}
}

// HasOverride reports whether the category carries its own selector set.
func (s Selectors) HasOverride(category string) bool {
	_, ok := s.Categories[category]
	return ok
}

// Generic returns the default selector set pinned to the given path, used
// as the fallback when a category override matches nothing on the page.
func (s Selectors) Generic(path string) CategorySelectors {
	sel := s.Default
	sel.Path = path
	return sel
}
