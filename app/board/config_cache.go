package board

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	boardsDir string
	cache     map[string]*Config
	mu        sync.RWMutex
}

func NewConfigCache(boardsDir string) *ConfigCache {
	return &ConfigCache{
		boardsDir: boardsDir,
		cache:     make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.boardsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.boardsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		// Derive board name from filename (remove .yml extension)
		fileName := filepath.Base(file)
		boardName := fileName[:len(fileName)-4]

		config, err := cc.LoadConfig(boardName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Configuration loaded", "board", boardName, "enabled", config.Settings.Enabled, "refresh_interval", config.Settings.RefreshInterval)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(boardName string) (*Config, error) {
	configFile := cc.getConfigFilePath(boardName)
	boardConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	boardConfig.Name = boardName

	if err := cc.validateConfig(boardConfig); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[boardConfig.Name] = boardConfig

	return boardConfig, nil
}

func (cc *ConfigCache) GetConfig(boardName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	boardConfig, ok := cc.cache[boardName]
	if !ok {
		return nil, fmt.Errorf("board config with name '%s' not found", boardName)
	}
	return boardConfig, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var boardConfig Config
	if err := yaml.Unmarshal(data, &boardConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if boardConfig.Settings.RefreshInterval == 0 {
		boardConfig.Settings.RefreshInterval = 300
	}
	if boardConfig.Settings.Timeout == 0 {
		boardConfig.Settings.Timeout = 30
	}

	return &boardConfig, nil
}

func (cc *ConfigCache) validateConfig(boardConfig *Config) error {
	if boardConfig == nil {
		return fmt.Errorf("boardConfig is nil")
	}

	requiredFields := map[string]string{
		"board name": boardConfig.Name,
		"board URL":  boardConfig.URL,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	nonNegativeFields := map[string]int{
		"refresh interval": boardConfig.Settings.RefreshInterval,
		"timeout":          boardConfig.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(boardName string) string {
	return filepath.Join(cc.boardsDir, boardName+".yml")
}
