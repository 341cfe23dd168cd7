package sw

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// SameOrigin 比较 scheme、host 与端口。相对地址视为同源；网关把相对请求解析到
// scope 之下，因此只有显式代理的绝对请求行会带来不同的 scheme。
func SameOrigin(scope, target *url.URL) bool {
	if scope == nil || target == nil {
		return false
	}
	if target.Host == "" {
		return true
	}
	if scope.Scheme != "" && target.Scheme != "" && !strings.EqualFold(scope.Scheme, target.Scheme) {
		return false
	}
	scopeHost, scopePort := normalizeHost(scope.Host, scope.Scheme)
	targetHost, targetPort := normalizeHost(target.Host, target.Scheme)
	return scopeHost == targetHost && scopePort == targetPort
}

// normalizeHost 拆分 host 与端口，缺省端口按 scheme 补齐。
func normalizeHost(raw, scheme string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		}
	}
	if port == 0 {
		port = defaultPort(scheme)
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}

func defaultPort(scheme string) int {
	if strings.EqualFold(scheme, "https") {
		return 443
	}
	return 80
}

// resolvePath 把同源路径解析为 scope 下的绝对 URL。
func resolvePath(scope *url.URL, path string) *url.URL {
	ref, err := url.Parse(path)
	if err != nil || scope == nil {
		return &url.URL{Path: path}
	}
	return scope.ResolveReference(ref)
}
