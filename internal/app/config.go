package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/siegeld/dantectl/pkg/shell"
)

func LoadConfig(v any) {
	for _, data := range configs {
		if err := yaml.Unmarshal(data, v); err != nil {
			Logger.Warn().Err(err).Send()
		}
	}
}

// PatchConfig sets (or deletes, when value is nil) a nested key in the
// config file. Everything else in the file survives the rewrite.
func PatchConfig(value any, path ...string) error {
	if ConfigPath == "" {
		return errors.New("config file disabled")
	}
	if len(path) == 0 {
		return errors.New("config path empty")
	}

	// empty config is OK
	b, _ := os.ReadFile(ConfigPath)

	var root map[string]any
	if err := yaml.Unmarshal(b, &root); err != nil {
		return err
	}
	if root == nil {
		root = map[string]any{}
	}

	node := root
	for _, key := range path[:len(path)-1] {
		child, _ := node[key].(map[string]any)
		if child == nil {
			child = map[string]any{}
			node[key] = child
		}
		node = child
	}

	if last := path[len(path)-1]; value != nil {
		node[last] = value
	} else {
		delete(node, last)
	}

	b, err := yaml.Marshal(root)
	if err != nil {
		return err
	}

	return os.WriteFile(ConfigPath, b, 0644)
}

type flagConfig []string

func (c *flagConfig) String() string {
	return strings.Join(*c, " ")
}

func (c *flagConfig) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var configs [][]byte

func initConfig(confs flagConfig) {
	if confs == nil {
		confs = []string{"dantectl.yaml"}
	}

	for _, conf := range confs {
		if len(conf) == 0 {
			continue
		}
		if conf[0] == '{' {
			// config as raw YAML or JSON
			configs = append(configs, []byte(conf))
		} else if data := parseConfString(conf); data != nil {
			configs = append(configs, data)
		} else {
			// config as file
			if ConfigPath == "" {
				ConfigPath = conf
			}

			if data, _ = os.ReadFile(conf); data == nil {
				continue
			}

			data = []byte(shell.ReplaceEnvVars(string(data)))
			configs = append(configs, data)
		}
	}

	if ConfigPath != "" {
		if !filepath.IsAbs(ConfigPath) {
			if cwd, err := os.Getwd(); err == nil {
				ConfigPath = filepath.Join(cwd, ConfigPath)
			}
		}
		Info["config_path"] = ConfigPath
	}
}

func parseConfString(s string) []byte {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return nil
	}

	items := strings.Split(s[:i], ".")
	if len(items) < 2 {
		return nil
	}

	// `log.level=trace` => `{log: {level: trace}}`
	var pre string
	var suf = s[i+1:]
	for _, item := range items {
		pre += "{" + item + ": "
		suf += "}"
	}

	return []byte(pre + suf)
}
