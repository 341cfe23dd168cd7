package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// assetManifest 是构建流程产出的静态资源清单，例如：
//
//	assets:
//	  - /dashboard
//	  - /id-card
type assetManifest struct {
	Assets []string `yaml:"assets"`
}

// LoadAssetManifest 读取 YAML 资源清单，返回清理后的路径列表。
func LoadAssetManifest(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取资源清单失败: %w", err)
	}

	var manifest assetManifest
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("解析资源清单失败: %w", err)
	}

	result := make([]string, 0, len(manifest.Assets))
	for idx, asset := range manifest.Assets {
		asset = strings.TrimSpace(asset)
		if asset == "" {
			continue
		}
		if !strings.HasPrefix(asset, "/") {
			return nil, newFieldError(fmt.Sprintf("AssetManifest.assets[%d]", idx), "必须是以 / 开头的同源路径")
		}
		result = append(result, asset)
	}
	return result, nil
}
