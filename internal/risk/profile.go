package risk

import (
	"fmt"
	"strings"
	"sync"

	"kestrel/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PolicyListener fires after the tier profile is reloaded from disk.
type PolicyListener func(Policy)

// ProfileWatcher keeps the drawdown tier profile hot-reloadable. Editing the
// profile file takes effect without a restart; a broken edit keeps the last
// good policy.
type ProfileWatcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	policy    Policy
	listeners []PolicyListener
}

// WatchProfile reads the profile and watches the file for changes.
func WatchProfile(path string) (*ProfileWatcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("risk profile watcher requires a path")
	}
	policy, err := LoadPolicy(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk profile failed: %w", err)
	}
	w := &ProfileWatcher{path: path, v: v, policy: policy}
	v.OnConfigChange(func(evt fsnotify.Event) {
		reloaded, err := LoadPolicy(w.path)
		if err != nil {
			logger.Errorf("risk profile reload failed, keeping previous tiers: %v", err)
			return
		}
		w.mu.Lock()
		w.policy = reloaded
		listeners := make([]PolicyListener, len(w.listeners))
		copy(listeners, w.listeners)
		w.mu.Unlock()

		logger.Infof("risk profile reloaded from %s (%d tiers)", w.path, len(reloaded.Tiers()))
		for _, fn := range listeners {
			fn(reloaded)
		}
	})
	v.WatchConfig()
	return w, nil
}

// Policy returns the current tier policy.
func (w *ProfileWatcher) Policy() Policy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.policy
}

// OnChange registers a listener. Listeners run on the watcher goroutine and
// must not block.
func (w *ProfileWatcher) OnChange(fn PolicyListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}
