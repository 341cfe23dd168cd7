package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher 监听配置文件变更；每次变更都会重新走完整的 Load 流程，
// 校验失败的配置不会替换当前配置，而是以 error 形式交给回调。
type Watcher struct {
	path string
	v    *viper.Viper
	once sync.Once
}

// NewWatcher 构建针对 path 的配置监听器，调用 Start 后生效。
func NewWatcher(path string) *Watcher {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	return &Watcher{path: path, v: v}
}

// Start 注册回调并开始监听，重复调用只生效一次。
func (w *Watcher) Start(onChange func(*Config, error)) error {
	var startErr error
	w.once.Do(func() {
		if err := w.v.ReadInConfig(); err != nil {
			startErr = err
			return
		}
		w.v.OnConfigChange(func(fsnotify.Event) {
			onChange(Load(w.path))
		})
		w.v.WatchConfig()
	})
	return startErr
}
