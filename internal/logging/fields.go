package logging

import (
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供网关请求日志共用的字段。
func RequestFields(method, path, clientID, requestID string) logrus.Fields {
	fields := logrus.Fields{
		"method": method,
		"path":   path,
	}
	if clientID != "" {
		fields["client_id"] = clientID
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

// FetchFields 在请求字段之上追加 controller 的处理结果。
func FetchFields(base logrus.Fields, version string, result *sw.FetchResult, status int) logrus.Fields {
	fields := logrus.Fields{}
	for k, v := range base {
		fields[k] = v
	}
	fields["action"] = "fetch"
	fields["version"] = version
	fields["status"] = status
	if result != nil {
		fields["source"] = string(result.Source)
		fields["handled"] = result.Handled
		fields["stored"] = result.Stored
	}
	return fields
}
