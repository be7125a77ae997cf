// Package config 提供配置加载功能
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"archive-search-api/pkg/logger"
)

// debounceWindow 合并编辑器保存触发的成串写事件
const debounceWindow = 200 * time.Millisecond

// Watch 监听 configs 目录，配置文件变更后重新加载并回调 onChange
//
// 占位符展开不经过 viper 的自带热加载，所以这里走完整的 Load。
// 加载失败保留旧配置，onChange 在 watcher goroutine 中调用。
func Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add("configs"); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch config dir: %w", err)
	}

	go func() {
		defer func() { _ = watcher.Close() }()

		debounce := time.NewTimer(debounceWindow)
		if !debounce.Stop() {
			<-debounce.C
		}

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if filepath.Ext(ev.Name) != ".yaml" {
					continue
				}
				debounce.Reset(debounceWindow)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn(ctx, "config watcher error", "error", err.Error())

			case <-debounce.C:
				cfg, err := Load()
				if err != nil {
					logger.Warn(ctx, "config reload failed, keeping previous config", "error", err.Error())
					continue
				}
				logger.Info(ctx, "config reloaded")
				onChange(cfg)
			}
		}
	}()

	return nil
}
