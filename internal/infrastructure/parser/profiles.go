package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"DealsIngestor/internal/config"
	"DealsIngestor/internal/scanner"
)

// BuildRegistry layers configured profiles over base. A configured profile
// with the name of a built-in one replaces it; the generic profile always
// stays last.
func BuildRegistry(base *scanner.Registry, defs []config.ProfileConfig, logger *slog.Logger) (*scanner.Registry, error) {
	if base == nil {
		base = scanner.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out := scanner.NewRegistry()
	for _, p := range base.Profiles() {
		out.Register(p)
	}

	for _, def := range defs {
		p, err := profileFromConfig(def)
		if err != nil {
			return nil, err
		}
		logger.Debug("register scraping profile", "profile", p.Name, "hosts", len(p.Hosts), "render", p.Render)
		out.Register(p)
	}
	return out, nil
}

func profileFromConfig(def config.ProfileConfig) (scanner.Profile, error) {
	if !def.Generic && len(def.Hosts) == 0 {
		return scanner.Profile{}, fmt.Errorf("profile %s: no hosts", def.Name)
	}

	known := make(map[scanner.Field]bool, len(scanner.Fields))
	for _, f := range scanner.Fields {
		known[f] = true
	}

	fields := make(map[scanner.Field][]scanner.Selector, len(def.Selectors))
	for name, raw := range def.Selectors {
		field := scanner.Field(strings.ToLower(strings.TrimSpace(name)))
		if !known[field] {
			return scanner.Profile{}, fmt.Errorf("profile %s: unknown field %q", def.Name, name)
		}
		for _, s := range raw {
			if strings.TrimSpace(s) == "" {
				continue
			}
			fields[field] = append(fields[field], scanner.ParseSelector(s))
		}
	}
	if len(fields[scanner.FieldTitle]) == 0 && len(fields[scanner.FieldPrice]) == 0 {
		return scanner.Profile{}, fmt.Errorf("profile %s: needs a title or price selector", def.Name)
	}

	return scanner.Profile{
		Name:    def.Name,
		Hosts:   def.Hosts,
		Render:  def.Render,
		Generic: def.Generic,
		Fields:  fields,
	}, nil
}
