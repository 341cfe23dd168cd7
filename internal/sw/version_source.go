package sw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type versionPayload struct {
	Version string `json:"version"`
}

// ResolveVersion 在配置了 VersionEndpoint 时从同源接口读取 {version}，
// 任何失败都回退到构建内置的版本号。
func ResolveVersion(ctx context.Context, network Network, build Build, logger *logrus.Logger) string {
	if build.VersionEndpoint == "" || network == nil {
		return build.Version
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	version, err := fetchVersion(ctx, network, build)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action":   "version",
			"endpoint": build.VersionEndpoint,
			"fallback": build.Version,
		}).Warn("version_fetch_failed")
		return build.Version
	}
	return version
}

func fetchVersion(ctx context.Context, network Network, build Build) (string, error) {
	req := NewRequest(http.MethodGet, resolvePath(build.Scope, build.VersionEndpoint), http.Header{
		"Accept":        []string{"application/json"},
		"Cache-Control": []string{"no-cache"},
	})
	resp, err := network.Fetch(ctx, req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("unexpected status %d", resp.Status)
	}
	var payload versionPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return "", fmt.Errorf("decode version: %w", err)
	}
	version := strings.TrimSpace(payload.Version)
	if version == "" {
		return "", fmt.Errorf("empty version")
	}
	if strings.ContainsAny(version, "/\\ \x00") {
		return "", fmt.Errorf("invalid version %q", version)
	}
	return version, nil
}
