package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"mail-digest-go/internal/digest"
)

// Live holds the current digest settings. Workflow runs take a snapshot at
// start and never observe a reload midway.
type Live struct {
	current atomic.Pointer[digest.Settings]
}

func NewLive(s digest.Settings) *Live {
	l := &Live{}
	l.Store(s)
	return l
}

// Settings returns a snapshot of the current settings.
func (l *Live) Settings() digest.Settings {
	return *l.current.Load()
}

func (l *Live) Store(s digest.Settings) {
	l.current.Store(&s)
}

// Watch reloads the digest settings whenever the config file changes.
// Service settings such as the database are only read at startup.
func (l *Live) Watch() {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := viper.Unmarshal(&cfg); err != nil {
			logrus.Errorf("Failed to reload config from %s: %v", e.Name, err)
			return
		}
		s := cfg.DigestSettings()
		if err := s.Validate(); err != nil {
			logrus.Warnf("Reloaded digest settings are not usable yet: %v", err)
		}
		l.Store(s)
		logrus.WithField("file", e.Name).Info("Digest settings reloaded")
	})
	viper.WatchConfig()
}
