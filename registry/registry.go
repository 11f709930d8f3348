// Package registry holds the read-only launch targets: local applications
// keyed by lowercase name and the website shortcuts used by spoken commands.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// App is a launch descriptor.
type App struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// Site is a named website shortcut.
type Site struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

type file struct {
	Platform   string         `yaml:"platform"`
	Apps       map[string]App `yaml:"apps"`
	Sites      []Site         `yaml:"sites"`
	WeatherURL string         `yaml:"weather_url"`
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	platform   string
	apps       map[string]App
	sites      []Site
	weatherURL string
}

// Default returns the built-in registry.
func Default() *Registry {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic("registry: embedded default is invalid: " + err.Error())
	}
	return r
}

// Load reads a registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a registry document. App names are lowercased.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return New(f.Platform, f.Apps, f.Sites, f.WeatherURL)
}

// New validates and copies the given entries into a Registry.
func New(platform string, apps map[string]App, sites []Site, weatherURL string) (*Registry, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" && len(apps) > 0 {
		return nil, errors.New("platform is required when apps are listed")
	}

	r := &Registry{
		platform:   platform,
		apps:       make(map[string]App, len(apps)),
		weatherURL: weatherURL,
	}
	for name, app := range apps {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, errors.New("app with empty name")
		}
		if strings.TrimSpace(app.Command) == "" {
			return nil, fmt.Errorf("app %q: command is required", key)
		}
		if _, dup := r.apps[key]; dup {
			return nil, fmt.Errorf("app %q listed twice", key)
		}
		r.apps[key] = App{Command: app.Command, Args: append([]string(nil), app.Args...)}
	}
	for _, s := range sites {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" || s.URL == "" {
			return nil, fmt.Errorf("site %q: name and url are required", s.Name)
		}
		r.sites = append(r.sites, Site{Name: name, URL: s.URL})
	}
	return r, nil
}

// Platform is the GOOS value the apps target.
func (r *Registry) Platform() string { return r.platform }

// AnyPlatform marks a registry whose commands resolve on every host.
const AnyPlatform = "*"

// SupportsPlatform reports whether apps can be launched on goos.
func (r *Registry) SupportsPlatform(goos string) bool {
	if r.platform == AnyPlatform {
		return true
	}
	return r.platform != "" && strings.EqualFold(r.platform, goos)
}

// App looks up a launch descriptor by lowercase name.
func (r *Registry) App(name string) (App, bool) {
	app, ok := r.apps[name]
	if !ok {
		return App{}, false
	}
	app.Args = append([]string(nil), app.Args...)
	return app, true
}

// AppNames returns the registered names in no particular order.
func (r *Registry) AppNames() []string {
	names := make([]string, 0, len(r.apps))
	for name := range r.apps {
		names = append(names, name)
	}
	return names
}

// MatchApp returns the registered app named as a whole word in target.
// When several match, the longest name wins, then the alphabetically first.
func (r *Registry) MatchApp(target string) (string, bool) {
	padded := " " + strings.Join(strings.Fields(strings.ToLower(target)), " ") + " "
	best := ""
	for name := range r.apps {
		if !strings.Contains(padded, " "+name+" ") {
			continue
		}
		if len(name) > len(best) || (len(name) == len(best) && name < best) {
			best = name
		}
	}
	return best, best != ""
}

// MatchSite returns the first site whose name occurs in target.
func (r *Registry) MatchSite(target string) (Site, bool) {
	for _, s := range r.sites {
		if strings.Contains(target, s.Name) {
			return s, true
		}
	}
	return Site{}, false
}

func (r *Registry) WeatherURL() string { return r.weatherURL }
