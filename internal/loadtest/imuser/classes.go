package imuser

import (
	"fmt"
	"sort"

	"github.com/wesleyorama2/imload/internal/config"
	"github.com/wesleyorama2/imload/internal/loadtest"
)

// Classes builds the user classes selected in cfg.Classes, sorted by name.
func Classes(cfg *config.TestConfig) ([]loadtest.UserClass, error) {
	if len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("no user classes selected")
	}

	names := make([]string, 0, len(cfg.Classes))
	for name := range cfg.Classes {
		names = append(names, name)
	}
	sort.Strings(names)

	classes := make([]loadtest.UserClass, 0, len(names))
	for _, name := range names {
		behavior, err := newBehavior(name, cfg)
		if err != nil {
			return nil, err
		}

		class := loadtest.UserClass{
			Name:     name,
			Weight:   cfg.Classes[name],
			Behavior: behavior,
		}
		if err := class.Validate(); err != nil {
			return nil, err
		}
		classes = append(classes, class)
	}

	return classes, nil
}

func newBehavior(name string, cfg *config.TestConfig) (loadtest.Behavior, error) {
	switch name {
	case config.ClassIMUser:
		return NewStandardUser(cfg.IMUser)
	case config.ClassAdminUser:
		return NewAdminUser(cfg.AdminUser)
	default:
		return nil, fmt.Errorf("unknown user class: %s", name)
	}
}
