package filetype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Name          string   `toml:"-"`
	Extensions    []string `toml:"extensions"`
	Patterns      []string `toml:"patterns"`
	LanguageIDs   []string `toml:"language_ids"`
	LSP           string   `toml:"lsp"`
	Formatters    []string `toml:"formatters"`
	FormatterMode string   `toml:"formatter_mode"`
	LSPFormat     string   `toml:"lsp_format"`
}

func LoadDir(dir string) ([]*Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading filetype dir %s: %w", dir, err)
	}

	var configs []*Config
	var names []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		var cfg Config
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}

		cfg.Name = strings.TrimSuffix(name, ".toml")
		configs = append(configs, &cfg)
	}

	return configs, nil
}

// SaveTo writes cfg as dir/<name>.toml. The Name field names the file and
// is not serialized into it, matching how LoadDir reads it back.
func SaveTo(dir string, cfg *Config) error {
	if cfg.Name == "" {
		return fmt.Errorf("filetype config needs a name")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating filetype dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, cfg.Name+".toml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// GlobalDir returns the directory holding globally installed filetype
// configs, honoring XDG_CONFIG_HOME.
func GlobalDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codebuddy", "filetypes")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "codebuddy", "filetypes")
	}
	return filepath.Join(home, ".config", "codebuddy", "filetypes")
}

// ProjectDir returns the directory holding project-level filetype configs
// under a project root.
func ProjectDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".codebuddy", "filetypes")
}

// LoadMerged loads globally installed filetype configs. There is no project
// root in scope, so this is equivalent to LoadDir(GlobalDir()).
func LoadMerged() ([]*Config, error) {
	return LoadDir(GlobalDir())
}

// LoadMergedFrom loads global filetype configs and merges project-level
// configs under projectRoot over them. A project config with the same name
// as a global one replaces it entirely; unique names from both sides are
// kept.
func LoadMergedFrom(projectRoot string) ([]*Config, error) {
	global, err := LoadDir(GlobalDir())
	if err != nil {
		return nil, err
	}

	project, err := LoadDir(ProjectDir(projectRoot))
	if err != nil {
		return nil, err
	}

	if len(project) == 0 {
		return global, nil
	}

	projectByName := make(map[string]*Config, len(project))
	for _, cfg := range project {
		projectByName[cfg.Name] = cfg
	}

	merged := make([]*Config, 0, len(global)+len(project))
	for _, cfg := range global {
		if _, overridden := projectByName[cfg.Name]; overridden {
			continue
		}
		merged = append(merged, cfg)
	}
	merged = append(merged, project...)

	return merged, nil
}
